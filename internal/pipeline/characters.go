package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/recapforge/recap/internal/characters"
	"github.com/recapforge/recap/internal/clients"
)

// characterVisualPrompt asks the understanding service's visual-chat
// extractor for a character roster grounded on the uploaded frames
// rather than the transcript (spec §4.3-S9).
const characterVisualPrompt = `List every distinct named or visually recurring character in this video. ` +
	`Respond as a JSON array of objects with fields name, aliases, description, role, visual_traits, confidence, first_appearance.`

// stageCharacters is S9 (progress 32): when the job belongs to a
// series, run the AI text extractor and the visual extractor
// concurrently and merge their output into the series' persisted
// roster. Jobs with no series id skip character tracking entirely.
func (w *Worker) stageCharacters(ctx context.Context, r *run) error {
	if r.record.SeriesID == "" {
		return nil
	}
	if err := w.publish(ctx, r, 32, "Extracting characters"); err != nil {
		return err
	}

	var aiRaw, visualRaw []clients.RawCharacter
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		raw, err := w.extractCharactersAI(gctx, r)
		if err != nil {
			return fmt.Errorf("ai character extraction: %w", err)
		}
		aiRaw = raw
		return nil
	})
	group.Go(func() error {
		raw, err := w.extractCharactersVisual(gctx, r.videoID)
		if err != nil {
			w.logger.Warn("visual character extraction failed, continuing with ai-only", "error", err)
			return nil
		}
		visualRaw = raw
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	ai := toCharacters(aiRaw, characters.SourceAI)
	visual := toCharacters(visualRaw, characters.SourceVisual)

	merged, err := w.characters.MergeAndSave(ctx, r.record.SeriesID, visual, ai)
	if err != nil {
		return fmt.Errorf("merge character roster: %w", err)
	}
	r.characterRoster = merged
	return nil
}

// extractCharactersAI derives a character roster from the structured
// extraction and transcript already in hand via the LLM client, used
// when the understanding service's own character list (from S7) needs
// a text-grounded second pass.
func (w *Worker) extractCharactersAI(ctx context.Context, r *run) ([]clients.RawCharacter, error) {
	if r.structured != nil && len(r.structured.Characters) > 0 {
		return r.structured.Characters, nil
	}
	if w.llm == nil {
		return nil, nil
	}

	prompt := "Identify the named characters in this transcript and respond as a JSON array of objects " +
		"with fields name, aliases, description, role, visual_traits, confidence, first_appearance.\n\n" +
		transcriptPreview(r.transcript)

	result, err := w.llm.Chat(ctx, clients.ChatRequest{
		Messages: []clients.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}

	raw, err := clients.ParseStructuredJSON(result.Content)
	if err != nil {
		return nil, fmt.Errorf("parse character extraction response: %w", err)
	}
	var out []clients.RawCharacter
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode character extraction response: %w", err)
	}
	return out, nil
}

// extractCharactersVisual asks the understanding service's visual-chat
// endpoint for a character roster and decodes its JSON response.
func (w *Worker) extractCharactersVisual(ctx context.Context, videoID string) ([]clients.RawCharacter, error) {
	reply, err := w.understanding.VisualChat(ctx, videoID, characterVisualPrompt)
	if err != nil {
		return nil, err
	}
	raw, err := clients.ParseStructuredJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("parse visual character response: %w", err)
	}
	var out []clients.RawCharacter
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode visual character response: %w", err)
	}
	return out, nil
}

// toCharacters converts an extractor's raw characters into persisted
// records, stamping a fresh id and a single appearance spanning
// first_appearance onward attributed to source.
func toCharacters(raw []clients.RawCharacter, source characters.Source) []characters.Character {
	out := make([]characters.Character, 0, len(raw))
	for _, rc := range raw {
		out = append(out, characters.Character{
			ID:              uuid.NewString(),
			Name:            rc.Name,
			Aliases:         rc.Aliases,
			Description:     rc.Description,
			Role:            characters.Role(rc.Role),
			VisualTraits:    rc.VisualTraits,
			Confidence:      rc.Confidence,
			FirstAppearance: rc.FirstAppearance,
			Appearances: []characters.Appearance{{
				Start:      rc.FirstAppearance,
				Confidence: rc.Confidence,
				Source:     source,
			}},
		})
	}
	return out
}

func transcriptPreview(segments []clients.TranscriptSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Speaker)
		b.WriteString(": ")
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	return b.String()
}
