package clients

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestIsTransientMessage(t *testing.T) {
	cases := map[string]bool{
		"network error talking to upstream": true,
		"server is busy, please retry":      true,
		"please try again later":            true,
		"abnormal program termination":      true,
		"invalid api key":                   false,
		"":                                  false,
	}
	for msg, want := range cases {
		if got := IsTransientMessage(msg); got != want {
			t.Errorf("IsTransientMessage(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestIsTransientCode(t *testing.T) {
	if !IsTransientCode("0001") || !IsTransientCode("0429") {
		t.Fatal("expected 0001 and 0429 to be transient codes")
	}
	if IsTransientCode("0500") {
		t.Fatal("0500 should not be a transient code")
	}
}

func TestIsTransientStatus(t *testing.T) {
	if !IsTransientStatus(429) || !IsTransientStatus(500) || !IsTransientStatus(503) {
		t.Fatal("expected 429 and 5xx to be transient statuses")
	}
	if IsTransientStatus(400) || IsTransientStatus(200) {
		t.Fatal("4xx (other than 429) and 2xx should not be transient")
	}
}

func TestAsTransient(t *testing.T) {
	te := &TransientError{Message: "network blip"}
	wrapped := errors.New("wrapped: " + te.Error())
	if _, ok := AsTransient(wrapped); ok {
		t.Fatal("plain wrapped string error should not match AsTransient")
	}
	if _, ok := AsTransient(te); !ok {
		t.Fatal("expected AsTransient to recognize *TransientError")
	}
}

func TestWithRetry_StopsOnFatal(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), 3, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return 0, &FatalError{Message: "bad request"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("fatal error should not be retried, got %d attempts", attempts)
	}
}

func TestWithRetry_CancelledContextStopsImmediately(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	_, err := withRetry(ctx, 3, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return 0, &TransientError{Message: "network hiccup"}
	})
	if err == nil {
		t.Fatal("expected error once context deadline is exceeded")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt before the backoff sleep is interrupted, got %d", attempts)
	}
}

func TestWithRetry_SucceedsAfterTransient(t *testing.T) {
	attempts := 0
	result, err := withRetry(context.Background(), 5, func(ctx context.Context, attempt int) (string, error) {
		attempts++
		if attempts < 2 {
			return "", &TransientError{Message: "try again"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("got %q, want ok", result)
	}
}

func TestParseStructuredJSON_PlainObject(t *testing.T) {
	got, err := ParseStructuredJSON(`{"a":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(got, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestParseStructuredJSON_StripsFenceAndPrefix(t *testing.T) {
	content := "Here is the result:\n```json\n{\"chapters\":[1,2,3]}\n```"
	got, err := ParseStructuredJSON(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed struct {
		Chapters []int `json:"chapters"`
	}
	if err := json.Unmarshal(got, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(parsed.Chapters))
	}
}

func TestParseStructuredJSON_EmptyFails(t *testing.T) {
	if _, err := ParseStructuredJSON("   "); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestValidateStructuredJSON_RejectsMismatch(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["title"],"properties":{"title":{"type":"string"}}}`)
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"title":"ok"}`)); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestParseAndValidate_RepairsOnce(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["title"],"properties":{"title":{"type":"string"}}}`)
	repaired := false
	result, err := ParseAndValidate(schema, `{"wrong":true}`, func(prompt string) (string, error) {
		repaired = true
		return `{"title":"fixed"}`, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repaired {
		t.Fatal("expected repair callback to run")
	}
	var parsed struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Title != "fixed" {
		t.Fatalf("got %q, want fixed", parsed.Title)
	}
}

func TestRateLimiter_TryConsumeDrainsAndRefills(t *testing.T) {
	rl := NewRateLimiter(2) // 2 rps
	if !rl.TryConsume() || !rl.TryConsume() {
		t.Fatal("expected first two consumes to succeed")
	}
	if rl.TryConsume() {
		t.Fatal("expected bucket to be drained")
	}
	time.Sleep(600 * time.Millisecond)
	if !rl.TryConsume() {
		t.Fatal("expected refill after waiting half a second at 2rps")
	}
}

func TestRateLimiter_DefaultsWhenNonPositive(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl.requestsPerSecond != 150 {
		t.Fatalf("got %v, want default 150", rl.requestsPerSecond)
	}
}

func TestEstimateDurationMS(t *testing.T) {
	// 150 words/min at ~5 chars/word -> 750 chars/min -> 12.5 chars/sec
	ms := estimateDurationMS(125)
	if ms < 9000 || ms > 11000 {
		t.Fatalf("estimateDurationMS(125) = %d, expected roughly 10000", ms)
	}
}

func TestSilentPlaceholderMP3_IsValidWAVHeader(t *testing.T) {
	data := silentPlaceholderMP3()
	if len(data) < 44 {
		t.Fatalf("expected at least a 44-byte WAV header, got %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("expected RIFF/WAVE header, got %q/%q", data[0:4], data[8:12])
	}
}

func TestSpeech_EmptyTextReturnsPlaceholder(t *testing.T) {
	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", Voice: "v"})
	result, err := c.Speech(context.Background(), "", "v")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Audio) == 0 {
		t.Fatal("expected non-empty placeholder audio")
	}
}

func TestCharactersToWords(t *testing.T) {
	alignment := &elevenLabsAlignment{
		Characters:          []string{"h", "i", " ", "y", "o", "u"},
		CharacterStartTimes: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5},
		CharacterEndTimes:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
	}
	words := charactersToWords(alignment)
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d: %#v", len(words), words)
	}
	if words[0].Word != "hi" || words[1].Word != "you" {
		t.Fatalf("got %#v", words)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter(""); d != 0 {
		t.Fatalf("expected 0 for empty header, got %v", d)
	}
	if d := parseRetryAfter("5"); d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}
}
