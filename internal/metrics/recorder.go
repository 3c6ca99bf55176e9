// Package metrics tracks purely observational counters for the
// pipeline worker: how long each stage takes, how often it retries,
// and how jobs ultimately resolve. It never gates pipeline logic; a
// nil *Recorder is always safe to call into.
package metrics

import (
	"sync"
	"time"
)

// StageStat aggregates one stage's outcomes across every job that has
// reached it.
type StageStat struct {
	Count        int
	Failures     int
	TotalSeconds float64
}

// Recorder accumulates counters in memory for the life of the worker
// process. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	stages   map[string]*StageStat
	retries  map[string]int
	outcomes map[string]int
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		stages:   make(map[string]*StageStat),
		retries:  make(map[string]int),
		outcomes: make(map[string]int),
	}
}

// RecordStage records one stage's duration and whether it failed.
func (r *Recorder) RecordStage(stage string, d time.Duration, failed bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[stage]
	if !ok {
		s = &StageStat{}
		r.stages[stage] = s
	}
	s.Count++
	s.TotalSeconds += d.Seconds()
	if failed {
		s.Failures++
	}
}

// RecordRetry counts one transient-error retry attempt against a
// named stage or client call (e.g. "wait_polling", "tts_synthesis").
func (r *Recorder) RecordRetry(label string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[label]++
}

// RecordOutcome counts one job's terminal status ("completed" or
// "failed").
func (r *Recorder) RecordOutcome(outcome string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

// Snapshot is a point-in-time copy of every counter, safe to read or
// serialize without holding the Recorder's lock.
type Snapshot struct {
	Stages   map[string]StageStat `json:"stages"`
	Retries  map[string]int       `json:"retries"`
	Outcomes map[string]int       `json:"outcomes"`
}

// Snapshot returns a copy of the current counters.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{Stages: map[string]StageStat{}, Retries: map[string]int{}, Outcomes: map[string]int{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stages := make(map[string]StageStat, len(r.stages))
	for k, v := range r.stages {
		stages[k] = *v
	}
	retries := make(map[string]int, len(r.retries))
	for k, v := range r.retries {
		retries[k] = v
	}
	outcomes := make(map[string]int, len(r.outcomes))
	for k, v := range r.outcomes {
		outcomes[k] = v
	}
	return Snapshot{Stages: stages, Retries: retries, Outcomes: outcomes}
}
