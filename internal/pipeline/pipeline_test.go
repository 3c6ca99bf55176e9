package pipeline

import (
	"testing"

	"github.com/recapforge/recap/internal/clients"
)

func TestNormalizeChapters_DropsCreditsAndShortEntries(t *testing.T) {
	raw := []clients.RawChapter{
		{Start: 0, End: 90, Title: "Opening Credits"},
		{Start: 90, End: 94, Title: "Blink and you'll miss it"},
		{Start: 94, End: 400, Title: "The heist begins"},
		{Start: 400, End: 700, Title: "Aftermath"},
		{Start: 700, End: 720, Title: "End Credits"},
	}
	got := normalizeChapters(raw, 720)

	for _, c := range got {
		if isCreditsChapter(c.Title, c.Description) {
			t.Fatalf("credits chapter survived normalization: %+v", c)
		}
		if c.Duration() < minChapterSeconds {
			t.Fatalf("short chapter survived normalization: %+v", c)
		}
	}
}

func TestNormalizeChapters_DedupesOverlappingStarts(t *testing.T) {
	raw := []clients.RawChapter{
		{Start: 0, End: 200, Title: "A"},
		{Start: 50, End: 300, Title: "A duplicate"}, // starts well before A's end: a duplicate
		{Start: 400, End: 600, Title: "B"},
	}
	got := normalizeChapters(raw, 600)
	if len(got) != 2 {
		t.Fatalf("expected 2 chapters after dedup, got %d: %+v", len(got), got)
	}
}

func TestNormalizeChapters_KeepsChapterWithinOverlapTolerance(t *testing.T) {
	raw := []clients.RawChapter{
		{Start: 0, End: 200, Title: "A"},
		{Start: 199, End: 400, Title: "B"}, // starts 1s before A's end: within tolerance, kept
	}
	got := normalizeChapters(raw, 400)
	if len(got) != 2 {
		t.Fatalf("expected both chapters kept within overlap tolerance, got %d: %+v", len(got), got)
	}
}

func TestNormalizeChapters_CapsOverlongChapter(t *testing.T) {
	raw := []clients.RawChapter{
		{Start: 0, End: 1000, Title: "Way too long"},
	}
	got := normalizeChapters(raw, 1000)
	if len(got) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(got))
	}
	if got[0].Duration() != maxChapterSeconds {
		t.Fatalf("expected capped duration %v, got %v", maxChapterSeconds, got[0].Duration())
	}
}

func TestNormalizeChapters_MergesShortAdjacentChapters(t *testing.T) {
	raw := []clients.RawChapter{
		{Start: 0, End: 20, Title: "A"},
		{Start: 20, End: 40, Title: "B"},
		{Start: 40, End: 200, Title: "C"},
	}
	got := normalizeChapters(raw, 200)
	for i, c := range got {
		if i < len(got)-1 && c.Duration() < mergeTargetSeconds {
			t.Fatalf("chapter %d merged short of target: %+v", i, c)
		}
	}
}

func TestCapTargetDuration(t *testing.T) {
	cases := []struct {
		name                      string
		targetMinutes, sourceSecs float64
		wantMinutes               float64
		wantCapped                bool
	}{
		{"within bounds", 8, 3600, 8, false},
		{"exceeds 2x source", 60, 600, 20, true}, // 600*2/60 = 20
		{"zero target", 0, 600, 0, false},
		{"zero source", 8, 0, 8, false},
	}
	for _, c := range cases {
		gotMinutes, gotCapped := capTargetDuration(c.targetMinutes, c.sourceSecs)
		if gotCapped != c.wantCapped || gotMinutes != c.wantMinutes {
			t.Errorf("%s: capTargetDuration(%v,%v) = (%v,%v), want (%v,%v)",
				c.name, c.targetMinutes, c.sourceSecs, gotMinutes, gotCapped, c.wantMinutes, c.wantCapped)
		}
	}
}

func TestDurationStep(t *testing.T) {
	if got := durationStep("Normalizing chapters", false); got != "Normalizing chapters" {
		t.Fatalf("unexpected uncapped step text: %q", got)
	}
	if got := durationStep("Normalizing chapters", true); got == "Normalizing chapters" {
		t.Fatalf("expected capped step text to differ from base")
	}
}

func TestTrimScenes_KeepsInOrderPrefixWithinBudget(t *testing.T) {
	scenes := []chapterScene{
		{ID: 0, Title: "Intro", AudioDuration: 10},
		{ID: 1, Title: "Chapter 1", AudioDuration: 30},
		{ID: 2, Title: "Chapter 2", AudioDuration: 90},
		{ID: 3, Title: "Outro", AudioDuration: 10},
	}
	got := trimScenes(scenes, 60)

	wantIDs := []int{0, 1}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d scenes kept, got %d: %+v", len(wantIDs), len(got), got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("expected scene %d at position %d, got %+v", id, i, got)
		}
	}
	if total := totalSceneDuration(got); total > 60 {
		t.Fatalf("expected total <= 60 after trim, got %v", total)
	}
}

func TestTrimScenes_KeepsFirstSceneWhenNoneFit(t *testing.T) {
	scenes := []chapterScene{
		{ID: 0, Title: "Intro", AudioDuration: 100},
		{ID: 1, Title: "Chapter 1", AudioDuration: 30},
	}
	got := trimScenes(scenes, 10)
	if len(got) != 1 || got[0].ID != 0 {
		t.Fatalf("expected only the first scene kept when none fit, got %+v", got)
	}
}

func TestWellFormedBaseURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"", false},
		{"https://recap.example.com", true},
		{"not a url", false},
		{"/relative/path", false},
	}
	for _, c := range cases {
		if got := wellFormedBaseURL(c.url); got != c.want {
			t.Errorf("wellFormedBaseURL(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestCodecSupported(t *testing.T) {
	supported := []string{"h264", "hevc"}
	if !codecSupported("H264", supported) {
		t.Fatal("expected case-insensitive match for h264")
	}
	if codecSupported("vp9", supported) {
		t.Fatal("expected vp9 to be unsupported")
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		status   string
		wantDone bool
		wantErr  bool
	}{
		{clients.StatusParse, true, false},
		{clients.StatusParseError, true, true},
		{"PARSING", false, false},
		{"", false, false},
	}
	for _, c := range cases {
		done, err := parseStatus(c.status)
		if done != c.wantDone {
			t.Errorf("parseStatus(%q) done = %v, want %v", c.status, done, c.wantDone)
		}
		if (err != nil) != c.wantErr {
			t.Errorf("parseStatus(%q) err = %v, wantErr %v", c.status, err, c.wantErr)
		}
	}
}

func TestBuildCharacterGuide_EmptyRosterYieldsEmptyGuide(t *testing.T) {
	if got := buildCharacterGuide(nil); got != "" {
		t.Fatalf("expected empty guide for empty roster, got %q", got)
	}
}

func TestKeyMomentsByChapter_GroupsByIndex(t *testing.T) {
	structured := &clients.StructuredMovieData{
		KeyMoments: []clients.KeyMoment{
			{ChapterIndex: 0, Start: 1, End: 2},
			{ChapterIndex: 0, Start: 3, End: 4},
			{ChapterIndex: 2, Start: 5, End: 6},
		},
	}
	got := keyMomentsByChapter(structured)
	if len(got[0]) != 2 {
		t.Fatalf("expected 2 key moments for chapter 0, got %d", len(got[0]))
	}
	if len(got[2]) != 1 {
		t.Fatalf("expected 1 key moment for chapter 2, got %d", len(got[2]))
	}
	if len(got[1]) != 0 {
		t.Fatalf("expected no key moments for chapter 1, got %d", len(got[1]))
	}
}

func TestKeyMomentsByChapter_NilStructured(t *testing.T) {
	if got := keyMomentsByChapter(nil); got != nil {
		t.Fatalf("expected nil map for nil structured data, got %+v", got)
	}
}
