package pipeline

import (
	"context"
	"fmt"
)

// introOutroPadSeconds bounds how much of the source plays under the
// synthetic intro/outro scenes (spec §4.3-S12: intro/outro get a short
// slice of the source rather than the full runtime).
const introOutroPadSeconds = 8.0

// stageBuildScenes is S12 (progress 68): pair every narration with a
// source video range, defaulting to its chapter's span and refining it
// through clip-matching when the job opted in, a user script was
// supplied, and a matcher is wired (spec §4.3-S12).
func (w *Worker) stageBuildScenes(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 68, "Building scenes"); err != nil {
		return err
	}
	if len(r.narrations) != len(r.chapters) {
		return fmt.Errorf("narration count %d does not match chapter count %d", len(r.narrations), len(r.chapters))
	}

	threshold := w.cfg.ClipMatchBaseConfidence + w.cfg.ClipMatchFullVideoBonus
	useMatching := r.record.ClipMatchEnrichment && r.record.HasScript && w.matcher != nil

	scenes := make([]chapterScene, 0, len(r.chapters)+2)

	introEnd := introOutroPadSeconds
	if r.probe != nil {
		if sourceSeconds := r.probe.Duration.Seconds(); introEnd > sourceSeconds {
			introEnd = sourceSeconds
		}
	}
	scenes = append(scenes, chapterScene{ID: 0, Title: "Intro", Narration: r.introText, VideoStart: 0, VideoEnd: introEnd})

	for i, ch := range r.chapters {
		start, end := ch.Start, ch.End
		if useMatching {
			if ms, me, ok, err := w.matcher.Match(ctx, r.videoID, r.narrations[i], threshold); err != nil {
				w.logger.Warn("clip match failed, keeping chapter default range", "chapter", i, "error", err)
			} else if ok {
				start, end = ms, me
			}
		}
		scenes = append(scenes, chapterScene{
			ID:        i + 1,
			Title:     ch.Title,
			Narration: r.narrations[i],
			VideoStart: start,
			VideoEnd:   end,
		})
	}

	outroStart := 0.0
	outroEnd := introOutroPadSeconds
	if r.probe != nil {
		sourceSeconds := r.probe.Duration.Seconds()
		outroStart = sourceSeconds - introOutroPadSeconds
		if outroStart < 0 {
			outroStart = 0
		}
		outroEnd = sourceSeconds
	}
	scenes = append(scenes, chapterScene{ID: len(scenes), Title: "Outro", Narration: r.outroText, VideoStart: outroStart, VideoEnd: outroEnd})

	if len(r.ttsOutputs) != len(scenes) {
		return fmt.Errorf("tts output count %d does not match scene count %d", len(r.ttsOutputs), len(scenes))
	}
	for i := range scenes {
		scenes[i].AudioPath = r.ttsOutputs[i].audioPath
		scenes[i].AudioDuration = r.ttsOutputs[i].duration
	}

	r.scenes = scenes
	return nil
}
