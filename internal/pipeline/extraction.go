package pipeline

import (
	"context"
	"fmt"

	"github.com/recapforge/recap/internal/clients"
)

// stageExtraction is S7 (progress 25 -> 30): fetch chapters and
// transcript (spec §4.3-S7's idle-window fetch, reused here once the
// wait protocol has resolved), then run the unified-extraction call and
// apply its speaker mapping to the transcript.
func (w *Worker) stageExtraction(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 25, "Extracting structured data"); err != nil {
		return err
	}

	rawChapters, transcript, err := w.fetchChaptersAndTranscript(ctx, r.videoID)
	if err != nil {
		return fmt.Errorf("fetch chapters and transcript: %w", err)
	}
	r.transcript = transcript

	structured, err := w.understanding.UnifiedExtraction(ctx, r.videoID)
	if err != nil {
		return fmt.Errorf("unified extraction: %w", err)
	}
	r.structured = structured

	applySpeakerMapping(r.transcript, structured.SpeakerMapping)

	r.chapterSource = rawChapters
	return w.publish(ctx, r, 30, "Structured data extracted")
}

// applySpeakerMapping rewrites each transcript segment's raw speaker
// label to the human-facing name the understanding service resolved
// (spec §3 Transcript Segment: "speaker is replaced via
// speaker_mapping when present").
func applySpeakerMapping(segments []clients.TranscriptSegment, mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	for i, seg := range segments {
		if mapped, ok := mapping[seg.Speaker]; ok {
			segments[i].Speaker = mapped
		}
	}
}
