package pipeline

import (
	"sort"
	"strings"

	"github.com/recapforge/recap/internal/clients"
	"github.com/recapforge/recap/internal/narration"
)

const (
	overlapToleranceSeconds = 1.0
	minChapterSeconds       = 3.0
	maxChapterSeconds       = 180.0
	mergeTargetSeconds      = 60.0
)

// creditsKeywords mark a chapter title/description as an opening or
// closing credits sequence, dropped during normalization (spec
// §4.3-S8).
var creditsKeywords = []string{
	"credits", "end credits", "opening credits", "title sequence",
	"intro sequence", "outro sequence", "closing titles",
}

func isCreditsChapter(title, description string) bool {
	combined := strings.ToLower(title + " " + description)
	for _, kw := range creditsKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	return false
}

// normalizeChapters implements spec §4.3-S8 and §3's Chapter
// invariants: sort by start, de-duplicate with a 1-second overlap
// tolerance, fill missing end times, drop credits/too-short entries,
// cap overlong ones, then greedily merge adjacent chapters until each
// spans at least mergeTargetSeconds.
func normalizeChapters(raw []clients.RawChapter, sourceDuration float64) []narration.Chapter {
	sorted := make([]clients.RawChapter, len(raw))
	copy(sorted, raw)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	deduped := make([]clients.RawChapter, 0, len(sorted))
	for _, c := range sorted {
		if len(deduped) > 0 {
			prev := deduped[len(deduped)-1]
			if c.Start < prev.End-overlapToleranceSeconds {
				continue // overlaps the previous chapter by more than tolerance: a duplicate
			}
		}
		deduped = append(deduped, c)
	}

	filled := make([]narration.Chapter, 0, len(deduped))
	for i, c := range deduped {
		end := c.End
		if end <= c.Start {
			if i+1 < len(deduped) {
				end = deduped[i+1].Start
			} else {
				end = sourceDuration
			}
		}
		if i == len(deduped)-1 && sourceDuration > 0 && end > sourceDuration {
			end = sourceDuration
		}
		filled = append(filled, narration.Chapter{Start: c.Start, End: end, Title: c.Title, Description: c.Description})
	}

	filtered := make([]narration.Chapter, 0, len(filled))
	for _, c := range filled {
		if isCreditsChapter(c.Title, c.Description) {
			continue
		}
		duration := c.End - c.Start
		if duration < minChapterSeconds {
			continue
		}
		if duration > maxChapterSeconds {
			c.End = c.Start + maxChapterSeconds
		}
		filtered = append(filtered, c)
	}

	return mergeUntilMinDuration(filtered)
}

// mergeUntilMinDuration greedily concatenates adjacent chapters until
// every merged group spans at least mergeTargetSeconds, except
// possibly the final group if the source itself is shorter (spec §3
// Chapter invariant).
func mergeUntilMinDuration(chapters []narration.Chapter) []narration.Chapter {
	if len(chapters) == 0 {
		return chapters
	}

	merged := make([]narration.Chapter, 0, len(chapters))
	current := chapters[0]

	for _, next := range chapters[1:] {
		if current.Duration() >= mergeTargetSeconds {
			merged = append(merged, current)
			current = next
			continue
		}
		current = narration.Chapter{
			Start:       current.Start,
			End:         next.End,
			Title:       current.Title,
			Description: strings.TrimSpace(current.Description + " " + next.Description),
		}
	}
	merged = append(merged, current)
	return merged
}

// capTargetDuration implements spec §4.3-S8's "Validate" clause and P4:
// if target_duration_minutes*60 exceeds source_duration*2, cap it at
// source_duration*2/60 and report that the cap was applied.
func capTargetDuration(targetMinutes, sourceDuration float64) (cappedMinutes float64, wasCapped bool) {
	if targetMinutes <= 0 || sourceDuration <= 0 {
		return targetMinutes, false
	}
	maxSeconds := sourceDuration * 2
	if targetMinutes*60 <= maxSeconds {
		return targetMinutes, false
	}
	return maxSeconds / 60, true
}

func durationStep(base string, capped bool) string {
	if !capped {
		return base
	}
	return base + " (target duration capped at 2x source length)"
}
