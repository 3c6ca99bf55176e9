package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recapforge/recap/internal/clients"
)

// errParseFailed marks the understanding service's terminal
// PARSE_ERROR status (spec §4.6).
var errParseFailed = errors.New("pipeline: video-understanding parse failed")

const (
	pollInterval       = 10 * time.Second
	webhookPollInterval = 5 * time.Second
)

// stageWait is S6 (progress 15 -> 20): race the webhook channel, the
// webhook status key, and polling against a deadline (spec §4.6).
func (w *Worker) stageWait(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 15, "Waiting for video understanding"); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.WaitTimeout)
	defer cancel()

	var err error
	if r.webhookMode {
		err = w.waitWebhook(waitCtx, r)
	} else {
		err = w.waitPolling(waitCtx, r)
	}
	if err != nil {
		return err
	}

	return w.publish(ctx, r, 20, "Video understanding complete")
}

// waitWebhook subscribes to the job's pub/sub channel and polls the
// status key as a catch-up path, resolving on whichever source reports
// a terminal status first (spec §4.6).
func (w *Worker) waitWebhook(ctx context.Context, r *run) error {
	channel := fmt.Sprintf("memories:webhook:%s", r.jobID)
	statusKey := fmt.Sprintf("memories:status:%s", r.jobID)

	sub := w.state.Subscribe(ctx, channel)
	defer sub.Close()

	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for parsing timed out: %w", ctx.Err())
		case msg := <-sub.Channel():
			if msg == nil {
				continue
			}
			if done, err := parseStatus(msg.Payload); done {
				return err
			}
		case <-ticker.C:
			status, err := w.state.Get(ctx, statusKey)
			if err != nil {
				continue // key not yet written; keep waiting
			}
			if done, statusErr := parseStatus(status); done {
				return statusErr
			}
		}
	}
}

// waitPolling calls the status endpoint on a fixed interval, retrying
// transient errors with linear backoff (spec §4.6, §5).
func (w *Worker) waitPolling(ctx context.Context, r *run) error {
	const maxTransientRetries = 3
	transientStreak := 0

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for parsing timed out: %w", ctx.Err())
		case <-ticker.C:
			result, err := w.understanding.Status(ctx, r.videoID)
			if err != nil {
				if clients.IsTransientMessage(err.Error()) {
					transientStreak++
					w.metrics.RecordRetry("wait_polling")
					if transientStreak > maxTransientRetries {
						return fmt.Errorf("status poll exhausted transient retries: %w", err)
					}
					backoff := time.Duration(5*transientStreak) * time.Second
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(backoff):
					}
					continue
				}
				return fmt.Errorf("status poll failed: %w", err)
			}
			transientStreak = 0

			if done, statusErr := parseStatus(result.Status); done {
				return statusErr
			}
		}
	}
}

// parseStatus maps a raw status value to the wait protocol's terminal
// outcomes (spec §4.6: "status=PARSE_ERROR -> fatal ... status=PARSE ->
// success ... any other value -> continue waiting").
func parseStatus(status string) (done bool, err error) {
	switch status {
	case clients.StatusParseError:
		return true, errParseFailed
	case clients.StatusParse:
		return true, nil
	default:
		return false, nil
	}
}

// fetchChaptersAndTranscript runs the chapters and transcript fetches
// concurrently (spec §4.3-S7, §5 "S6 parallelism: 2"); stageExtraction
// calls it once the wait protocol has resolved. A transcript failure
// yields an empty fallback but a chapters failure is fatal.
func (w *Worker) fetchChaptersAndTranscript(ctx context.Context, videoID string) ([]clients.RawChapter, []clients.TranscriptSegment, error) {
	var chapters []clients.RawChapter
	var transcript []clients.TranscriptSegment

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		chapters, err = w.understanding.ChapterSummary(gctx, videoID)
		if err != nil {
			return fmt.Errorf("fetch chapters: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		segments, err := w.understanding.AudioTranscript(gctx, videoID)
		if err != nil {
			w.logger.Warn("transcript fetch failed, continuing with empty transcript", "error", err)
			return nil
		}
		transcript = segments
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return chapters, transcript, nil
}
