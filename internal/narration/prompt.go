package narration

import (
	"fmt"
	"strings"

	"github.com/recapforge/recap/internal/clients"
)

const narrationSystemPrompt = `You write tight, vivid recap narration for video chapters. Never mention the camera, the screen, or that this is a video. Write as if narrating the story itself. Avoid dramatic clichés like "suddenly" or "heart pounding". Return a JSON array of strings, one per chapter, in order, with no extra commentary.`

// buildBatchPrompt constructs the user prompt for one batch of
// chapters (spec §4.4): story-structure phase label by position,
// character roster, location list, relationship list, scene context
// for exactly that batch's chapter range, and per-chapter word
// budgets.
func buildBatchPrompt(chapters []Chapter, startIndex, total int, structured *clients.StructuredMovieData, budgets []int, keyMoments map[int][]clients.KeyMoment, characterGuide string) string {
	var b strings.Builder

	if structured != nil {
		if len(structured.Characters) > 0 {
			fmt.Fprintf(&b, "Characters: %s\n", joinCharacterNames(structured.Characters))
		}
		if len(structured.Locations) > 0 {
			fmt.Fprintf(&b, "Locations: %s\n", strings.Join(structured.Locations, ", "))
		}
		if len(structured.Relationships) > 0 {
			fmt.Fprintf(&b, "Relationships: %s\n", strings.Join(structured.Relationships, "; "))
		}
		if structured.PlotSummary != "" {
			fmt.Fprintf(&b, "Plot summary: %s\n", structured.PlotSummary)
		}
	}
	if characterGuide != "" {
		fmt.Fprintf(&b, "Character guide: %s\n", characterGuide)
	}

	b.WriteString("\nWrite narration for these chapters:\n\n")
	for i, ch := range chapters {
		idx := startIndex + i
		fmt.Fprintf(&b, "Chapter %d (%s phase, target %d words): %s\n", idx+1, phaseLabel(idx, total), budgets[i], ch.Description)
		if moments, ok := keyMoments[idx]; ok {
			for _, m := range moments {
				fmt.Fprintf(&b, "  Key moment (%s): %s%s\n", m.Speaker, m.LeadIn, m.Dialogue)
			}
		}
	}

	return b.String()
}

func joinCharacterNames(chars []clients.RawCharacter) string {
	names := make([]string, len(chars))
	for i, c := range chars {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
