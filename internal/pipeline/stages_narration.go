package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/recapforge/recap/internal/blobstore"
	"github.com/recapforge/recap/internal/characters"
	"github.com/recapforge/recap/internal/clients"
	"github.com/recapforge/recap/internal/narration"
)

// stageNarration is S10 (progress 35 -> 48): generate per-chapter
// narration, an AI intro, and a template outro (spec §4.3-S10).
func (w *Worker) stageNarration(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 35, "Generating narration"); err != nil {
		return err
	}

	userScript, err := w.blob.ReadText(ctx, blobstore.UserScriptKey(r.jobID))
	if err != nil {
		userScript = "" // no user-supplied script for this job
	}

	characterGuide := r.record.CharacterGuide
	if characterGuide == "" {
		characterGuide = buildCharacterGuide(r.characterRoster)
	}

	req := narration.Request{
		Chapters:       r.chapters,
		Structured:     r.structured,
		Transcript:     r.transcript,
		TargetSeconds:  r.targetSeconds,
		CharacterGuide: characterGuide,
		UserScript:     userScript,
		KeyMoments:     keyMomentsByChapter(r.structured),
	}

	narrations, err := w.narrator.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate chapter narration: %w", err)
	}
	r.narrations = narrations
	r.record.HasScript = userScript != ""

	intro, err := w.narrator.GenerateIntro(ctx, r.structured)
	if err != nil {
		return fmt.Errorf("generate intro: %w", err)
	}
	r.introText = intro
	r.outroText = narration.Outro(rand.Int())

	return w.publish(ctx, r, 48, "Narration generated")
}

// buildCharacterGuide renders a merged character roster into the same
// free-text guide shape a submitter would otherwise supply, for series
// jobs that tracked characters via S9 but didn't provide one directly.
func buildCharacterGuide(roster []characters.Character) string {
	if len(roster) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range roster {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c.Name)
		if c.Description != "" {
			b.WriteString(": ")
			b.WriteString(c.Description)
		}
	}
	return b.String()
}

// keyMomentsByChapter groups structured's flat key-moment list by
// chapter index for the narration request (spec §3 Key Moment).
func keyMomentsByChapter(structured *clients.StructuredMovieData) map[int][]clients.KeyMoment {
	if structured == nil || len(structured.KeyMoments) == 0 {
		return nil
	}
	out := make(map[int][]clients.KeyMoment)
	for _, km := range structured.KeyMoments {
		out[km.ChapterIndex] = append(out[km.ChapterIndex], km)
	}
	return out
}
