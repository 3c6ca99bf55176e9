// Package jobs owns the Job Manager (spec §4.2): job lifecycle, the
// priority/default queue pair, atomic updates built on the state
// store's CAS primitive, and terminal-state guardrails.
package jobs

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a job record does not exist.
var ErrNotFound = errors.New("jobs: not found")

// Status is a job's position in its state machine (spec §3, §4.2):
// pending -> processing -> (generating_audio -> stitching)? -> completed;
// any non-terminal state -> failed.
type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusGeneratingAudio  Status = "generating_audio"
	StatusStitching        Status = "stitching"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// IsTerminal reports whether s is an absorbing state (spec §3: "once
// status ∈ {completed, failed} the job is terminal").
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PlanTier is the submitter's subscription tier.
type PlanTier string

const (
	PlanTierNone    PlanTier = "none"
	PlanTierCreator PlanTier = "creator"
	PlanTierStudio  PlanTier = "studio"
)

// Scene is a rendered chapter's position in the final output, surfaced
// on the job record once stitching completes.
type Scene struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	VideoStart    float64 `json:"video_start"`
	VideoEnd      float64 `json:"video_end"`
	AudioDuration float64 `json:"audio_duration"`
}

// Submission is the inbound job-creation payload (spec §6 "Job
// submission"). The HTTP layer that accepts this is out of scope; only
// the shape crossing into the core is specified here.
type Submission struct {
	SourceVideoKey          string   `json:"source_video_key"`
	OriginalFilename        string   `json:"original_filename"`
	TargetDurationMinutes   float64  `json:"target_duration_minutes,omitempty"`
	CharacterGuide          string   `json:"character_guide,omitempty"`
	SeriesID                string   `json:"series_id,omitempty"`
	UserID                  string   `json:"user_id,omitempty"`
	PlanTier                PlanTier `json:"plan_tier,omitempty"`
	Priority                bool     `json:"priority,omitempty"`
	ClipMatchEnrichment     bool     `json:"clip_match_enrichment,omitempty"`
	CopyrightProtectedStitch bool    `json:"copyright_protected_stitch,omitempty"`
}

// Record is the Job data model (spec §3 Job).
type Record struct {
	ID                       string   `json:"id"`
	SourceVideoKey           string   `json:"source_video_key"`
	OriginalFilename         string   `json:"original_filename"`
	TargetDurationMinutes    float64  `json:"target_duration_minutes,omitempty"`
	CharacterGuide           string   `json:"character_guide,omitempty"`
	SeriesID                 string   `json:"series_id,omitempty"`
	UserID                   string   `json:"user_id,omitempty"`
	PlanTier                 PlanTier `json:"plan_tier,omitempty"`
	Priority                 bool     `json:"priority,omitempty"`
	ClipMatchEnrichment      bool     `json:"clip_match_enrichment,omitempty"`
	CopyrightProtectedStitch bool     `json:"copyright_protected_stitch,omitempty"`

	Status         Status  `json:"status"`
	Progress       int     `json:"progress"`
	CurrentStep    string  `json:"current_step"`
	TotalScenes    int     `json:"total_scenes"`
	ProcessedScenes int    `json:"processed_scenes"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	OutputURL      string  `json:"output_url,omitempty"`
	Scenes         []Scene `json:"scenes,omitempty"`
	HasScript      bool    `json:"has_script"`
	CancelRequested bool   `json:"cancel_requested,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// newRecord builds the initial record for a submission (status=pending,
// progress=0, per create_job's contract).
func newRecord(id string, sub Submission) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:                       id,
		SourceVideoKey:           sub.SourceVideoKey,
		OriginalFilename:         sub.OriginalFilename,
		TargetDurationMinutes:    sub.TargetDurationMinutes,
		CharacterGuide:           sub.CharacterGuide,
		SeriesID:                 sub.SeriesID,
		UserID:                   sub.UserID,
		PlanTier:                 sub.PlanTier,
		Priority:                 sub.Priority,
		ClipMatchEnrichment:      sub.ClipMatchEnrichment,
		CopyrightProtectedStitch: sub.CopyrightProtectedStitch,
		Status:                   StatusPending,
		Progress:                 0,
		CurrentStep:              "Queued",
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

func marshalRecord(r *Record) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalRecord(raw string) (*Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// PublishPayload is the small fan-out message published on every state
// change (spec §4.2: "Publish payload contains only {id, status,
// progress, current_step}").
type PublishPayload struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
}

func publishPayload(r *Record) string {
	b, _ := json.Marshal(PublishPayload{
		ID:          r.ID,
		Status:      r.Status,
		Progress:    r.Progress,
		CurrentStep: r.CurrentStep,
	})
	return string(b)
}
