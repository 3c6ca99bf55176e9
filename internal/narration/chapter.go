// Package narration implements the Script / Narration Generator (spec
// §4.4, §4.3-S10): turns chapters and structured movie data (or a
// user-supplied script) into per-chapter narration strings with
// duration-aware word budgets, batched LLM calls, and a post-processing
// cleaner.
package narration

// Chapter is a normalized time interval (spec §3 Chapter): half-open
// [Start, End) in seconds plus a title and description produced by the
// understanding service and normalized by the pipeline's S8 stage.
type Chapter struct {
	Start       float64
	End         float64
	Title       string
	Description string
}

// Duration returns the chapter's length in seconds.
func (c Chapter) Duration() float64 {
	return c.End - c.Start
}

// phaseLabel returns the story-structure phase for a chapter at the
// given position, by index/total thresholds 15%/40%/80%/95% (spec
// §4.4: "story-structure phase label by position").
func phaseLabel(index, total int) string {
	if total <= 0 {
		return "resolution"
	}
	pos := float64(index) / float64(total)
	switch {
	case pos < 0.15:
		return "intro"
	case pos < 0.40:
		return "conflict"
	case pos < 0.80:
		return "rising action"
	case pos < 0.95:
		return "climax"
	default:
		return "resolution"
	}
}
