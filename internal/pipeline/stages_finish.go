package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/recapforge/recap/internal/blobstore"
	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/stitch"
)

const (
	durationFitOverrunRatio  = 1.1
	durationFitShortfallRatio = 0.8
)

// stageDurationFit is S13 (progress 70): if the assembled scenes run
// long, greedily keep an in-order prefix of scenes until the next one
// would push the total past durationFitOverrunRatio of target; if they
// fall short of durationFitShortfallRatio, log a shortfall warning
// rather than fail (spec §4.3-S13).
func (w *Worker) stageDurationFit(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 70, "Fitting duration"); err != nil {
		return err
	}
	if r.targetSeconds <= 0 {
		return nil
	}

	total := totalSceneDuration(r.scenes)
	maxAllowed := r.targetSeconds * durationFitOverrunRatio
	minExpected := r.targetSeconds * durationFitShortfallRatio

	if total > maxAllowed {
		r.scenes = trimScenes(r.scenes, maxAllowed)
		total = totalSceneDuration(r.scenes)
	}

	if total < minExpected {
		w.logger.Warn("assembled recap falls short of target duration", "job_id", r.jobID, "target_seconds", r.targetSeconds, "actual_seconds", total)
	}
	return nil
}

func totalSceneDuration(scenes []chapterScene) float64 {
	total := 0.0
	for _, s := range scenes {
		total += s.AudioDuration
	}
	return total
}

// trimScenes greedily keeps scenes in order, accumulating a running
// total, stopping as soon as the next scene would push the total past
// maxAllowed (spec §4.3-S13: "select chapters until we're within
// acceptable range"). If nothing fits, the first scene is kept alone
// rather than returning an empty result.
func trimScenes(scenes []chapterScene, maxAllowed float64) []chapterScene {
	selected := make([]chapterScene, 0, len(scenes))
	running := 0.0
	for _, s := range scenes {
		if running+s.AudioDuration > maxAllowed {
			break
		}
		selected = append(selected, s)
		running += s.AudioDuration
	}

	if len(selected) == 0 && len(scenes) > 0 {
		return scenes[:1]
	}
	return selected
}

// stageStitch is S14 (progress 70 -> 90): hand the assembled scenes to
// the Elastic Stitcher (spec §4.7).
func (w *Worker) stageStitch(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 70, "Stitching final video"); err != nil {
		return err
	}

	stitching := jobs.StatusStitching
	if _, err := w.jobs.UpdateJob(ctx, r.jobID, jobs.Patch{Status: &stitching}); err != nil {
		return fmt.Errorf("mark stitching: %w", err)
	}

	stitchScenes := make([]stitch.Scene, len(r.scenes))
	for i, s := range r.scenes {
		stitchScenes[i] = stitch.Scene{
			ID:            s.ID,
			SourceStart:   s.VideoStart,
			SourceEnd:     s.VideoEnd,
			AudioPath:     s.AudioPath,
			TargetSeconds: s.AudioDuration,
		}
	}

	stitchCtx, cancel := context.WithTimeout(ctx, w.cfg.StitchTimeout)
	defer cancel()

	outputPath := filepath.Join(r.workDir, "final_recap.mp4")
	if _, err := w.stitcher.Stitch(stitchCtx, r.sourcePath, r.workDir, stitchScenes, outputPath); err != nil {
		return fmt.Errorf("stitch scenes: %w", err)
	}
	r.outputPath = outputPath

	processed := len(r.scenes)
	total := len(r.scenes)
	if _, err := w.jobs.UpdateJob(ctx, r.jobID, jobs.Patch{
		TotalScenes:     &total,
		ProcessedScenes: &processed,
	}); err != nil {
		return fmt.Errorf("record scene counts: %w", err)
	}

	return w.publish(ctx, r, 90, "Stitching complete")
}

// stageUploadOutput is S15 (progress 90): upload the rendered video and
// joined narration script to blob storage.
func (w *Worker) stageUploadOutput(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 90, "Uploading final video"); err != nil {
		return err
	}

	f, err := os.Open(r.outputPath)
	if err != nil {
		return fmt.Errorf("open rendered output: %w", err)
	}
	defer f.Close()

	presignedURL, err := w.blob.Upload(ctx, blobstore.OutputVideoKey(r.jobID), f, "video/mp4")
	if err != nil {
		return fmt.Errorf("upload rendered output: %w", err)
	}
	r.outputURL = presignedURL

	script := joinScript(r)
	if _, err := w.blob.WriteText(ctx, blobstore.OutputScriptKey(r.jobID), script); err != nil {
		return fmt.Errorf("upload narration script: %w", err)
	}

	return nil
}

func joinScript(r *run) string {
	var b strings.Builder
	for i, s := range r.scenes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Title)
		b.WriteString("\n")
		b.WriteString(s.Narration)
	}
	return b.String()
}

// stageComplete is S16 (progress 100): mark the job completed and
// best-effort delete the uploaded video from the understanding service.
func (w *Worker) stageComplete(ctx context.Context, r *run) error {
	scenes := make([]jobs.Scene, len(r.scenes))
	for i, s := range r.scenes {
		scenes[i] = jobs.Scene{
			ID:            s.ID,
			Title:         s.Title,
			VideoStart:    s.VideoStart,
			VideoEnd:      s.VideoEnd,
			AudioDuration: s.AudioDuration,
		}
	}

	if _, err := w.jobs.CompleteJobIfNotFailed(ctx, r.jobID, r.outputURL, scenes, 100, "Completed", len(scenes)); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	if r.videoID != "" {
		if err := w.understanding.Delete(ctx, r.videoID); err != nil {
			w.logger.Warn("best-effort understanding-service cleanup failed", "job_id", r.jobID, "error", err)
		}
	}
	return nil
}
