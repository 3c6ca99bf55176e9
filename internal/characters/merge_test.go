package characters

import "testing"

func TestNameSimilarity_IdenticalAndDistinct(t *testing.T) {
	if got := nameSimilarity("Ada", "Ada"); got != 1 {
		t.Fatalf("expected 1 for identical names, got %v", got)
	}
	if got := nameSimilarity("Ada Lovelace", "Ada L."); got < 0.5 {
		t.Fatalf("expected similar names to score > 0.5, got %v", got)
	}
	if got := nameSimilarity("Ada", "Zorblax"); got > 0.3 {
		t.Fatalf("expected distinct names to score low, got %v", got)
	}
	if got := nameSimilarity("", "Ada"); got != 0 {
		t.Fatalf("expected 0 for empty name, got %v", got)
	}
}

func TestJaccard_Basic(t *testing.T) {
	if got := jaccard([]string{"red hair", "scar"}, []string{"red hair", "scar"}); got != 1 {
		t.Fatalf("expected identical sets to score 1, got %v", got)
	}
	if got := jaccard([]string{"red hair"}, []string{"blue eyes"}); got != 0 {
		t.Fatalf("expected disjoint sets to score 0, got %v", got)
	}
	if got := jaccard(nil, nil); got != 0 {
		t.Fatalf("expected empty sets to score 0, got %v", got)
	}
}

func TestAliasOverlap(t *testing.T) {
	a := Character{Name: "Ada", Aliases: []string{"Countess"}}
	b := Character{Name: "Ada Lovelace", Aliases: []string{"Ada", "Countess of Lovelace"}}
	if got := aliasOverlap(a, b); got <= 0 {
		t.Fatalf("expected overlap from shared alias, got %v", got)
	}
}

func TestMerge_MatchesAndCombines(t *testing.T) {
	existing := []Character{
		{ID: "c1", Name: "Ada", Confidence: 0.6, VisualTraits: []string{"red hair"}},
	}
	visual := []Character{
		{Name: "Ada Lovelace", Confidence: 0.5, VisualTraits: []string{"red hair", "scar"}, Appearances: []Appearance{{Start: 10, End: 20, Confidence: 0.5}}},
	}
	ai := []Character{
		{Name: "Bob", Confidence: 0.7, FirstAppearance: 5},
	}

	merged := Merge(existing, visual, ai)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged characters (Ada matched, Bob distinct), got %d: %#v", len(merged), merged)
	}

	var ada *Character
	for i := range merged {
		if merged[i].Name == "Ada Lovelace" {
			ada = &merged[i]
		}
	}
	if ada == nil {
		t.Fatalf("expected the longer name Ada Lovelace to win, got %#v", merged)
	}
	if len(ada.Aliases) == 0 {
		t.Fatal("expected old name Ada to become an alias")
	}
	if len(ada.VisualTraits) != 2 {
		t.Fatalf("expected union of visual traits, got %#v", ada.VisualTraits)
	}
	if len(ada.Appearances) != 1 {
		t.Fatalf("expected visual appearance to be concatenated, got %#v", ada.Appearances)
	}
	if ada.Appearances[0].Source != SourceVisual {
		t.Fatalf("expected appearance source stamped visual, got %q", ada.Appearances[0].Source)
	}
}

func TestMerge_NoMatchKeepsDistinct(t *testing.T) {
	merged := Merge(nil, nil, []Character{{Name: "Alpha"}, {Name: "Beta"}})
	if len(merged) != 2 {
		t.Fatalf("expected 2 distinct characters, got %d", len(merged))
	}
}

func TestMerge_VisualConfidenceBoostCapped(t *testing.T) {
	existing := []Character{{Name: "Ada", Confidence: 0.5}}
	visual := []Character{{Name: "Ada", Confidence: 0.95}}
	merged := Merge(existing, visual, nil)
	if len(merged) != 1 {
		t.Fatalf("expected a single merged character, got %d", len(merged))
	}
	if merged[0].Confidence != 1.0 {
		t.Fatalf("expected boosted confidence capped at 1.0, got %v", merged[0].Confidence)
	}
}

func TestEarliestNonZero(t *testing.T) {
	if got := earliestNonZero(0, 5); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
	if got := earliestNonZero(5, 0); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
	if got := earliestNonZero(3, 7); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}
