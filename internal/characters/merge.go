package characters

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// MatchThreshold is the minimum combined match score for two character
// records to be considered the same character (spec §4.3-S9).
const MatchThreshold = 0.50

const (
	nameWeight        = 0.60
	aliasWeight       = 0.20
	visualTraitWeight = 0.20
)

// visualConfidenceBoost is applied to a visual-source appearance's
// confidence on merge, capped at 1.0 (spec §4.3-S9: "visual sources
// get a 1.1x boost capped at 1.0").
const visualConfidenceBoost = 1.1

// nameSimilarity returns a normalized similarity in [0,1] between two
// names using Levenshtein edit distance (1 - distance/maxLen).
func nameSimilarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim
}

// aliasOverlap returns the fraction of a's aliases (plus its name) that
// appear, case-insensitively, among b's aliases (plus its name).
func aliasOverlap(a Character, b Character) float64 {
	bSet := make(map[string]struct{}, len(b.Aliases)+1)
	bSet[strings.ToLower(b.Name)] = struct{}{}
	for _, alias := range b.Aliases {
		bSet[strings.ToLower(alias)] = struct{}{}
	}

	aNames := append([]string{a.Name}, a.Aliases...)
	if len(aNames) == 0 {
		return 0
	}
	matched := 0
	for _, name := range aNames {
		if _, ok := bSet[strings.ToLower(name)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(aNames))
}

// jaccard returns the Jaccard similarity of two string sets, compared
// case-insensitively.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[strings.ToLower(v)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		setB[strings.ToLower(v)] = struct{}{}
	}

	intersection := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			intersection++
		}
	}
	union := len(setA)
	for v := range setB {
		if _, ok := setA[v]; !ok {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// matchScore combines name similarity, alias overlap, and visual-trait
// Jaccard similarity per spec §4.3-S9's weighting (0.60/0.20/0.20).
func matchScore(a, b Character) float64 {
	return nameWeight*nameSimilarity(a.Name, b.Name) +
		aliasWeight*aliasOverlap(a, b) +
		visualTraitWeight*jaccard(a.VisualTraits, b.VisualTraits)
}

// sourcePriority ranks existing (database) characters above visual
// extraction above AI extraction, used to decide which side of a match
// supplies the canonical name (spec §4.3-S9: "existing > visual > AI
// priority").
func sourcePriority(s Source) int {
	switch s {
	case SourceDatabase:
		return 2
	case SourceVisual:
		return 1
	default:
		return 0
	}
}

// candidate pairs a character with the source that produced it, used
// only during merge to resolve priority; the persisted Character
// itself carries source at the appearance level.
type candidate struct {
	character Character
	source    Source
}

// Merge combines existing (already-persisted, from the database),
// visual (from the understanding service's visual chat extractor), and
// ai (from the LLM text extractor) rosters into one set, matching
// characters across all three by matchScore ≥ MatchThreshold and
// merging matched records per spec §4.3-S9's merge rule.
func Merge(existing, visual, ai []Character) []Character {
	var all []candidate
	for _, c := range existing {
		all = append(all, candidate{character: c, source: SourceDatabase})
	}
	for _, c := range visual {
		all = append(all, candidate{character: c, source: SourceVisual})
	}
	for _, c := range ai {
		all = append(all, candidate{character: c, source: SourceAI})
	}

	// Stable priority order so the first candidate in each merge group
	// is the highest-priority one encountered (existing > visual > AI).
	sort.SliceStable(all, func(i, j int) bool {
		return sourcePriority(all[i].source) > sourcePriority(all[j].source)
	})

	var merged []Character
	used := make([]bool, len(all))
	for i, cand := range all {
		if used[i] {
			continue
		}
		used[i] = true
		result := withAppearanceSource(cand.character, cand.source)

		for j := i + 1; j < len(all); j++ {
			if used[j] {
				continue
			}
			if matchScore(result, all[j].character) < MatchThreshold {
				continue
			}
			used[j] = true
			result = mergeTwo(result, withAppearanceSource(all[j].character, all[j].source), all[j].source)
		}
		merged = append(merged, result)
	}
	return merged
}

// withAppearanceSource stamps source onto every appearance that
// doesn't already carry one, so freshly-extracted characters (whose
// appearances come back from the client with no source set) are
// attributed to the pass that produced them.
func withAppearanceSource(c Character, source Source) Character {
	for i := range c.Appearances {
		if c.Appearances[i].Source == "" {
			c.Appearances[i].Source = source
		}
	}
	return c
}

// mergeTwo merges b into a per spec §4.3-S9: prefer the longer/more
// specific name (the shorter name becomes an alias), union aliases and
// visual traits, take max confidence (with a visual boost), concatenate
// appearances, and take the earliest non-zero first_appearance.
func mergeTwo(a, b Character, bSource Source) Character {
	result := a

	if len(b.Name) > len(a.Name) {
		result.Name = b.Name
		result.Aliases = appendUnique(result.Aliases, a.Name)
	} else if b.Name != "" && b.Name != a.Name {
		result.Aliases = appendUnique(result.Aliases, b.Name)
	}
	result.Aliases = appendUnique(result.Aliases, b.Aliases...)

	result.VisualTraits = appendUnique(result.VisualTraits, b.VisualTraits...)

	bConfidence := b.Confidence
	if bSource == SourceVisual {
		bConfidence *= visualConfidenceBoost
		if bConfidence > 1.0 {
			bConfidence = 1.0
		}
	}
	if bConfidence > result.Confidence {
		result.Confidence = bConfidence
	}

	if result.Description == "" {
		result.Description = b.Description
	}
	if result.Role == "" {
		result.Role = b.Role
	}

	result.Appearances = append(result.Appearances, b.Appearances...)

	result.FirstAppearance = earliestNonZero(result.FirstAppearance, b.FirstAppearance)

	return result
}

func earliestNonZero(a, b float64) float64 {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[strings.ToLower(v)] = struct{}{}
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
