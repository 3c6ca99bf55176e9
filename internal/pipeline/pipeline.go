// Package pipeline implements the Pipeline Worker (spec §4.3): a single
// run loop that pops a job id from the queue and drives it through the
// sixteen staged operations from source download to rendered output,
// publishing progress at each step and handling every stage's failure
// through one top-level guardrail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/recapforge/recap/internal/blobstore"
	"github.com/recapforge/recap/internal/characters"
	"github.com/recapforge/recap/internal/clients"
	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/media"
	"github.com/recapforge/recap/internal/metrics"
	"github.com/recapforge/recap/internal/narration"
	"github.com/recapforge/recap/internal/state"
	"github.com/recapforge/recap/internal/stitch"
	"github.com/recapforge/recap/internal/webhook"
)

// Config configures a Worker's policy knobs (spec §4.3, §5).
type Config struct {
	WorkDir           string
	PollInterval      time.Duration // main loop's sleep when the queue is empty
	WebhookBaseURL    string        // empty disables webhook mode in favor of polling
	TTSVoice          string
	WaitTimeout       time.Duration // S6, spec §5 "wait 1800 s"
	StitchTimeout     time.Duration // S14, spec §5 "stitch 1800 s"
	CharacterTTL      time.Duration // series roster persistence TTL
	ClipMatchBaseConfidence float64 // S12 default 0.40
	ClipMatchFullVideoBonus float64 // S12 "+0.10 for full_video source"
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 1800 * time.Second
	}
	if c.StitchTimeout <= 0 {
		c.StitchTimeout = 1800 * time.Second
	}
	if c.ClipMatchBaseConfidence <= 0 {
		c.ClipMatchBaseConfidence = 0.40
	}
	if c.ClipMatchFullVideoBonus <= 0 {
		c.ClipMatchFullVideoBonus = 0.10
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
}

// Worker drives every job popped from the Job Manager's queues through
// the full S1-S16 pipeline (spec §4.3).
type Worker struct {
	jobs          *jobs.Manager
	state         *state.Store
	blob          *blobstore.Store
	media         *media.Toolchain
	understanding clients.UnderstandingClient
	llm           clients.LLMClient
	tts           clients.TTSClient
	narrator      *narration.Generator
	characters    *characters.Store
	stitcher      *stitch.Stitcher
	webhookIssuer *webhook.Issuer
	matcher       ClipMatcher
	metrics       *metrics.Recorder

	cfg    Config
	logger *slog.Logger
}

// Deps bundles every collaborator a Worker needs. WebhookIssuer and
// Matcher may be nil: a nil issuer forces polling mode; a nil matcher
// disables clip-matching refinement regardless of the job's flag.
// Metrics may also be nil; every call into it is nil-safe.
type Deps struct {
	Jobs          *jobs.Manager
	State         *state.Store
	Blob          *blobstore.Store
	Media         *media.Toolchain
	Understanding clients.UnderstandingClient
	LLM           clients.LLMClient
	TTS           clients.TTSClient
	VectorStore   clients.VectorStoreClient
	Narrator      *narration.Generator
	Characters    *characters.Store
	Stitcher      *stitch.Stitcher
	WebhookIssuer *webhook.Issuer
	Matcher       ClipMatcher
	Metrics       *metrics.Recorder
	Logger        *slog.Logger
}

// New builds a Worker.
func New(deps Deps, cfg Config) *Worker {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	matcher := deps.Matcher
	if matcher == nil && deps.VectorStore != nil {
		matcher = NewVectorMatcher(deps.VectorStore)
	}
	return &Worker{
		jobs:          deps.Jobs,
		state:         deps.State,
		blob:          deps.Blob,
		media:         deps.Media,
		understanding: deps.Understanding,
		llm:           deps.LLM,
		tts:           deps.TTS,
		narrator:      deps.Narrator,
		characters:    deps.Characters,
		stitcher:      deps.Stitcher,
		webhookIssuer: deps.WebhookIssuer,
		matcher:       matcher,
		metrics:       deps.Metrics,
		cfg:           cfg,
		logger:        logger,
	}
}

// Run is the main loop (spec §4.3: "pop job id -> if present, drive
// pipeline; else sleep briefly"). It returns only when ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := w.jobs.GetNextJob(ctx)
		if err != nil {
			w.logger.Error("dequeue failed", "error", err)
			if !sleepFor(ctx, w.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if id == "" {
			if !sleepFor(ctx, w.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		w.processJob(ctx, id)
	}
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// run carries one job's mutable pipeline state across stages.
type run struct {
	jobID  string
	record *jobs.Record
	logger *slog.Logger

	workDir    string
	sourcePath string
	videoID    string
	webhookMode bool

	probe *media.ProbeResult

	chapterSource   []clients.RawChapter // S7's raw fetch, normalized into chapters at S8
	chapters        []narration.Chapter
	structured      *clients.StructuredMovieData
	transcript      []clients.TranscriptSegment
	characterRoster []characters.Character

	targetSeconds float64

	narrations []string
	introText  string
	outroText  string
	ttsOutputs []ttsOutput

	scenes []chapterScene

	outputPath string
	outputURL  string
}

// defaultTargetSeconds is used when a submission omits
// target_duration_minutes entirely.
const defaultTargetSeconds = 8 * 60

// chapterScene is the pipeline's in-flight form of spec §3's Chapter
// Scene: a chapter paired with its synthesized audio and chosen video
// range, ready for stitching.
type chapterScene struct {
	ID            int
	Title         string
	Narration     string
	AudioPath     string
	AudioDuration float64
	VideoStart    float64
	VideoEnd      float64
}

// processJob is the top-level handler named in spec §4.3: it owns the
// working directory's lifecycle and the terminal fail-on-error
// guardrail, regardless of which stage raised.
func (w *Worker) processJob(ctx context.Context, jobID string) {
	logger := w.logger.With("job_id", jobID)

	record, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("load job record failed", "error", err)
		return
	}

	workDir := filepath.Join(w.cfg.WorkDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		logger.Error("create working directory failed", "error", err)
		w.failJob(ctx, jobID, "failed to create working directory", "Failed")
		return
	}
	defer os.RemoveAll(workDir)

	r := &run{jobID: jobID, record: record, logger: logger, workDir: workDir}

	if err := w.drive(ctx, r); err != nil {
		logger.Error("pipeline failed", "error", err, "step", r.record.CurrentStep)
		w.failJob(ctx, jobID, sanitizeError(err), "Failed")
		w.metrics.RecordOutcome("failed")
		if r.videoID != "" {
			if delErr := w.understanding.Delete(context.Background(), r.videoID); delErr != nil {
				logger.Warn("best-effort understanding-service cleanup failed", "error", delErr)
			}
		}
		return
	}
	w.metrics.RecordOutcome("completed")
}

// drive runs S1 through S16 in strict order.
func (w *Worker) drive(ctx context.Context, r *run) error {
	stages := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{"S1 initialize", w.stageInitialize},
		{"S2 download", w.stageDownload},
		{"S3 format check", w.stageFormatCheck},
		{"S4 pre-upload optimization", w.stagePreUpload},
		{"S5 upload", w.stageUpload},
		{"S6 wait for parsing", w.stageWait},
		{"S7 unified extraction", w.stageExtraction},
		{"S8 chapter normalization", w.stageNormalizeChapters},
		{"S9 character extraction", w.stageCharacters},
		{"S10 narration generation", w.stageNarration},
		{"S11 tts", w.stageTTS},
		{"S12 build scenes", w.stageBuildScenes},
		{"S13 duration fit", w.stageDurationFit},
		{"S14 stitch", w.stageStitch},
		{"S15 upload output", w.stageUploadOutput},
		{"S16 complete", w.stageComplete},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		err := s.fn(ctx, r)
		w.metrics.RecordStage(s.name, time.Since(started), err != nil)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (w *Worker) failJob(ctx context.Context, jobID, message, step string) {
	if _, err := w.jobs.FailJobIfNotCompleted(ctx, jobID, message, step); err != nil {
		w.logger.Error("fail_job_if_not_completed failed", "job_id", jobID, "error", err)
	}
}

// sanitizeError strips an error down to a message safe to store on the
// job record: no stack-ish internals, just the wrapped chain's text
// (spec §7 "sanitized error message").
func sanitizeError(err error) string {
	var toolchainErr *media.ToolchainError
	if errors.As(err, &toolchainErr) {
		return toolchainErr.Error()
	}
	return err.Error()
}

// publish is a small helper every stage uses to update progress/step
// before doing its work (spec §4.3: "each stage publishes progress and
// current_step before work begins").
func (w *Worker) publish(ctx context.Context, r *run, progress int, step string) error {
	committed, err := w.jobs.UpdateJob(ctx, r.jobID, jobs.Patch{
		Progress:    &progress,
		CurrentStep: &step,
	})
	if err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	if committed {
		r.record.Progress = progress
		r.record.CurrentStep = step
	}
	return nil
}
