package narration

import (
	"regexp"
	"sort"
	"strings"
)

// chapterDelimiterPattern matches explicit `=== Chapter N ===`-style
// markers a user script may use to pre-segment its own chapters.
var chapterDelimiterPattern = regexp.MustCompile(`(?m)^\s*===\s*Chapter[^\n]*===\s*$`)

// sentencePattern splits on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
var sentencePattern = regexp.MustCompile(`(?:[^.!?]|\.[^\s.!?])+[.!?]*`)

// SplitUserScript divides a user-supplied script into len(chapters)
// narration strings (spec §4.3-S10 strategy 1, SC5). Explicit `===
// Chapter ===` delimiters take precedence; otherwise sentences are
// allocated proportionally to each chapter's duration using the
// largest-remainder method, with a floor of one sentence per chapter.
func SplitUserScript(script string, chapters []Chapter) []string {
	if len(chapters) == 0 {
		return nil
	}

	if parts := splitOnDelimiters(script); len(parts) == len(chapters) {
		return parts
	}

	sentences := splitSentences(script)
	return allocateSentences(sentences, chapters)
}

func splitOnDelimiters(script string) []string {
	if !chapterDelimiterPattern.MatchString(script) {
		return nil
	}
	raw := chapterDelimiterPattern.Split(script, -1)
	var parts []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

func splitSentences(script string) []string {
	matches := sentencePattern.FindAllString(script, -1)
	var sentences []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			sentences = append(sentences, m)
		}
	}
	return sentences
}

// allocateSentences distributes sentences across chapters proportional
// to each chapter's duration weight, via the largest-remainder method,
// with every chapter guaranteed at least one sentence when sentences
// are available (spec SC5: "60 sentences, durations proportional to
// weights ... no sentence repeated or dropped").
func allocateSentences(sentences []string, chapters []Chapter) []string {
	n := len(chapters)
	total := len(sentences)
	result := make([]string, n)
	if total == 0 {
		return result
	}

	totalDuration := 0.0
	for _, ch := range chapters {
		totalDuration += ch.Duration()
	}
	if totalDuration <= 0 {
		totalDuration = float64(n)
	}

	counts := make([]int, n)
	remainders := make([]float64, n)
	assigned := 0
	for i, ch := range chapters {
		weight := ch.Duration()
		if totalDuration == float64(n) {
			weight = 1
		}
		exact := float64(total) * weight / totalDuration
		counts[i] = int(exact)
		remainders[i] = exact - float64(counts[i])
		assigned += counts[i]
	}

	remaining := total - assigned
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := 0; i < remaining && i < n; i++ {
		counts[order[i]]++
	}

	// Guarantee at least one sentence per chapter when any remain,
	// borrowing from the chapter with the largest allocation.
	for i := 0; i < n; i++ {
		if counts[i] == 0 && total >= n {
			donor := maxIndex(counts)
			if counts[donor] > 1 {
				counts[donor]--
				counts[i]++
			}
		}
	}

	idx := 0
	for i := 0; i < n; i++ {
		end := idx + counts[i]
		if end > len(sentences) {
			end = len(sentences)
		}
		result[i] = strings.TrimSpace(strings.Join(sentences[idx:end], " "))
		idx = end
	}
	// Any leftover sentences (rounding slack) go to the final chapter.
	if idx < len(sentences) {
		result[n-1] = strings.TrimSpace(result[n-1] + " " + strings.Join(sentences[idx:], " "))
	}
	return result
}

func maxIndex(v []int) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
