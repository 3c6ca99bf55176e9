package narration

import (
	"regexp"
	"strings"
)

// mediumPhrases refer to the medium itself rather than the story (spec
// §7 "meta-language blacklist").
var mediumPhrases = []string{
	"the scene", "the camera", "the video", "the screen", "the shot",
	"we see", "on screen", "is shown", "is displayed",
}

// clichePhrases are dramatic-writing tics the source narration
// generator tends to overuse (spec §7).
var clichePhrases = []string{
	"suddenly", "shocked", "realizing", "determination",
	"heart pounding", "feels the weight",
}

// MetaLanguageBlacklist is the full phrase list, exported so tests (and
// the quality gate in generator.go) can validate against it directly
// (spec §7: "the exact list is parameter-ized so tests can validate").
var MetaLanguageBlacklist = append(append([]string{}, mediumPhrases...), clichePhrases...)

var chapterLabelPattern = regexp.MustCompile(`(?i)^\s*chapter\s+\d+\s*[:.\-]?\s*`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// ContainsBlacklistedPhrase reports whether text contains any
// meta-language or cliché phrase, case-insensitively.
func ContainsBlacklistedPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range MetaLanguageBlacklist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Clean post-processes a raw narration string: strips the
// meta-language blacklist, removes chapter labels, collapses
// whitespace, and normalizes punctuation, while preserving any
// trailing Original Audio Marker verbatim (spec §4.3-S10 "Post-process
// every narration").
func Clean(raw string) string {
	text, marker := ParseMarker(raw)
	original := text

	text = chapterLabelPattern.ReplaceAllString(text, "")
	text = stripBlacklistedPhrases(text)
	text = normalizePunctuation(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	// If aggressive stripping collapsed the narration to near-nothing,
	// fall back to the pre-clean text rather than losing the chapter's
	// narration entirely (spec §9 open question: "provisional" heuristic,
	// kept here as a known rough edge rather than silently dropped).
	if len(text) < 20 && len(original) > 50 {
		text = strings.TrimSpace(original)
	}

	if marker != nil {
		text = text + " " + FormatMarker(*marker)
	}
	return text
}

func stripBlacklistedPhrases(text string) string {
	for _, phrase := range MetaLanguageBlacklist {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
		text = re.ReplaceAllString(text, "")
	}
	return text
}

func normalizePunctuation(text string) string {
	text = strings.ReplaceAll(text, " ,", ",")
	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, "..", ".")
	text = strings.ReplaceAll(text, " !", "!")
	text = strings.ReplaceAll(text, " ?", "?")
	return text
}
