package pipeline

import (
	"context"
)

// stageNormalizeChapters is S8 (progress 25): normalize the raw chapter
// fetch from S7 and apply the target-duration cap (spec §4.3-S8, P4).
func (w *Worker) stageNormalizeChapters(ctx context.Context, r *run) error {
	step := "Normalizing chapters"

	cappedMinutes, wasCapped := capTargetDuration(r.record.TargetDurationMinutes, r.probe.Duration.Seconds())
	r.targetSeconds = cappedMinutes * 60
	if r.targetSeconds <= 0 {
		r.targetSeconds = defaultTargetSeconds
	}

	if err := w.publish(ctx, r, 25, durationStep(step, wasCapped)); err != nil {
		return err
	}
	if wasCapped {
		w.logger.Warn("target duration capped to 2x source length", "job_id", r.jobID, "requested_minutes", r.record.TargetDurationMinutes, "capped_minutes", cappedMinutes)
	}

	r.chapters = normalizeChapters(r.chapterSource, r.probe.Duration.Seconds())
	return nil
}
