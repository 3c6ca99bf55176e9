package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/narration"
)

const (
	ttsBatchSize = 5
	ttsBatchGap  = 1 * time.Second
)

// ttsItem is one entry in S11's ordered intro -> chapters -> outro
// synthesis list (spec §4.3-S11).
type ttsItem struct {
	label string
	text  string
}

// ttsOutput is one synthesized item: an audio file on disk plus its
// estimated duration, including any appended original-audio marker
// clip.
type ttsOutput struct {
	label     string
	audioPath string
	duration  float64
}

// stageTTS is S11 (progress 50 -> 65): synthesize speech for the intro,
// every chapter narration, and the outro, in batches of ttsBatchSize
// with a settling gap between batches (spec §4.3-S11).
func (w *Worker) stageTTS(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 50, "Generating audio narration"); err != nil {
		return err
	}
	generating := jobs.StatusGeneratingAudio
	if _, err := w.jobs.UpdateJob(ctx, r.jobID, jobs.Patch{Status: &generating}); err != nil {
		return fmt.Errorf("mark generating audio: %w", err)
	}

	items := make([]ttsItem, 0, len(r.narrations)+2)
	items = append(items, ttsItem{label: "intro", text: r.introText})
	for i, n := range r.narrations {
		items = append(items, ttsItem{label: fmt.Sprintf("chapter-%d", i), text: n})
	}
	items = append(items, ttsItem{label: "outro", text: r.outroText})

	outputs := make([]ttsOutput, len(items))
	total := len(items)
	for start := 0; start < total; start += ttsBatchSize {
		end := start + ttsBatchSize
		if end > total {
			end = total
		}

		group, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			group.Go(func() error {
				out, err := w.synthesizeItem(gctx, r, items[i])
				if err != nil {
					return fmt.Errorf("synthesize %s: %w", items[i].label, err)
				}
				outputs[i] = out
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		if end < total {
			if !sleepFor(ctx, ttsBatchGap) {
				return ctx.Err()
			}
		}

		pct := 50 + int(float64(end)/float64(total)*15)
		if pct > 65 {
			pct = 65
		}
		if err := w.publish(ctx, r, pct, "Generating audio narration"); err != nil {
			return err
		}
	}

	r.ttsOutputs = outputs
	return w.publish(ctx, r, 65, "Audio narration complete")
}

// synthesizeItem synthesizes one narration item, appending the clip of
// original source audio named by an Original Audio Marker when present
// (spec §3 Original Audio Marker, §4.3-S11). On a TTS failure the item
// falls back to a silent placeholder so one bad chapter never fails the
// whole job.
func (w *Worker) synthesizeItem(ctx context.Context, r *run, item ttsItem) (ttsOutput, error) {
	clean, marker := narration.ParseMarker(item.text)

	speech, err := w.tts.SpeechWithTimestamps(ctx, clean, w.cfg.TTSVoice)
	if err != nil {
		w.logger.Warn("tts synthesis failed, using silent placeholder", "item", item.label, "error", err)
		speech, err = w.tts.Speech(ctx, "", w.cfg.TTSVoice)
		if err != nil {
			return ttsOutput{}, err
		}
	}

	speechPath := filepath.Join(r.workDir, "audio-"+item.label+".mp3")
	if err := os.WriteFile(speechPath, speech.Audio, 0o644); err != nil {
		return ttsOutput{}, fmt.Errorf("write synthesized audio: %w", err)
	}
	duration := float64(speech.EstimatedMS) / 1000.0

	if marker == nil {
		return ttsOutput{label: item.label, audioPath: speechPath, duration: duration}, nil
	}

	originalPath := filepath.Join(r.workDir, "audio-"+item.label+"-original.m4a")
	if err := w.media.CutAudio(ctx, r.sourcePath, originalPath, marker.Start, marker.End); err != nil {
		return ttsOutput{}, fmt.Errorf("cut original audio marker: %w", err)
	}

	combinedPath := filepath.Join(r.workDir, "audio-"+item.label+"-combined.m4a")
	if err := w.media.ConcatAudio(ctx, []string{speechPath, originalPath}, combinedPath); err != nil {
		return ttsOutput{}, fmt.Errorf("concat original audio marker: %w", err)
	}

	return ttsOutput{label: item.label, audioPath: combinedPath, duration: duration + (marker.End - marker.Start)}, nil
}
