package narration

import (
	"strings"
	"testing"
)

func TestPhaseLabel_Thresholds(t *testing.T) {
	cases := []struct {
		index, total int
		want         string
	}{
		{0, 20, "intro"},
		{5, 20, "conflict"},
		{10, 20, "rising action"},
		{17, 20, "climax"},
		{19, 20, "resolution"},
	}
	for _, c := range cases {
		if got := phaseLabel(c.index, c.total); got != c.want {
			t.Errorf("phaseLabel(%d,%d) = %q, want %q", c.index, c.total, got, c.want)
		}
	}
}

func TestParseMarker_RoundTrip(t *testing.T) {
	text, marker := ParseMarker("X. Y... [ORIGINAL_AUDIO:10.5:13.2:Ada]")
	if text != "X. Y..." {
		t.Fatalf("expected stripped text %q, got %q", "X. Y...", text)
	}
	if marker == nil {
		t.Fatal("expected a marker")
	}
	if marker.Start != 10.5 || marker.End != 13.2 || marker.Speaker != "Ada" {
		t.Fatalf("unexpected marker: %#v", marker)
	}
}

func TestParseMarker_NoMarker(t *testing.T) {
	text, marker := ParseMarker("Plain narration with no marker.")
	if marker != nil {
		t.Fatalf("expected no marker, got %#v", marker)
	}
	if text != "Plain narration with no marker." {
		t.Fatalf("expected text unchanged, got %q", text)
	}
}

func TestClean_StripsBlacklistAndPreservesMarker(t *testing.T) {
	raw := "Suddenly, the camera pans as she feels the weight of her choice. [ORIGINAL_AUDIO:1:2:Bob]"
	cleaned := Clean(raw)
	if !strings.Contains(cleaned, "[ORIGINAL_AUDIO:1:2:Bob]") {
		t.Fatalf("expected marker preserved, got %q", cleaned)
	}
	if ContainsBlacklistedPhrase(cleaned) {
		t.Fatalf("expected blacklist phrases stripped, got %q", cleaned)
	}
}

func TestClean_FallsBackWhenOverStripped(t *testing.T) {
	raw := "The scene, the camera, the video, the screen, the shot, we see, on screen."
	cleaned := Clean(raw)
	if len(cleaned) < 20 {
		t.Fatalf("expected fallback to avoid near-empty result, got %q", cleaned)
	}
}

func TestSplitUserScript_ProportionalBySC5(t *testing.T) {
	chapters := []Chapter{
		{Start: 0, End: 80}, {Start: 80, End: 200}, {Start: 200, End: 300},
		{Start: 300, End: 390}, {Start: 390, End: 500}, {Start: 500, End: 600},
	}
	var script string
	for i := 0; i < 60; i++ {
		script += "Sentence number filler here. "
	}

	parts := SplitUserScript(script, chapters)
	if len(parts) != 6 {
		t.Fatalf("expected 6 chapter strings, got %d", len(parts))
	}
	for _, p := range parts {
		if p == "" {
			t.Fatal("expected every chapter to receive narration text")
		}
	}
}

func TestSplitUserScript_ExplicitDelimiters(t *testing.T) {
	script := "=== Chapter 1 ===\nFirst part.\n=== Chapter 2 ===\nSecond part."
	chapters := []Chapter{{Start: 0, End: 10}, {Start: 10, End: 20}}
	parts := SplitUserScript(script, chapters)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %#v", len(parts), parts)
	}
	if parts[0] != "First part." || parts[1] != "Second part." {
		t.Fatalf("unexpected split: %#v", parts)
	}
}

func TestWordBudgets_WithTargetDuration(t *testing.T) {
	chapters := []Chapter{{Start: 0, End: 100}, {Start: 100, End: 200}}
	budgets := WordBudgets(chapters, 630)
	// (630-30)/2 * 2.2 = 660
	if budgets[0] != 660 || budgets[1] != 660 {
		t.Fatalf("expected 660 words/chapter, got %#v", budgets)
	}
}

func TestWordBudgets_WithoutTargetDuration(t *testing.T) {
	chapters := []Chapter{{Start: 0, End: 100}}
	budgets := WordBudgets(chapters, 0)
	if budgets[0] != 250 {
		t.Fatalf("expected 100*2.5=250 words, got %d", budgets[0])
	}
}

func TestBoostedWordBudgets_ClampedRange(t *testing.T) {
	boosted := BoostedWordBudgets([]int{100}, 600, 100)
	if boosted[0] != maxChapterWordBudget {
		t.Fatalf("expected clamp at %d, got %d", maxChapterWordBudget, boosted[0])
	}
	boosted = BoostedWordBudgets([]int{1}, 10, 1000)
	if boosted[0] != minChapterWordBudget {
		t.Fatalf("expected clamp at %d, got %d", minChapterWordBudget, boosted[0])
	}
}

func TestPassesQualityGate(t *testing.T) {
	good := "This is a narration string with clearly more than ten words in it easily."
	short := "Too short."
	if !passesQualityGate([]string{good, good, good, short}) {
		t.Fatal("expected 3/4 passing to clear the 30% gate")
	}
	if passesQualityGate([]string{short, short, short, short}) {
		t.Fatal("expected all-short narrations to fail the gate")
	}
}
