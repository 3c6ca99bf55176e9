package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recapforge/recap/internal/state"
)

// memStore is a minimal in-process fake satisfying the Store interface,
// standing in for Redis in these unit tests (the retrieval pack has no
// in-process Redis fake; internal/state's own tests skip instead when
// Redis isn't reachable, but the webhook's token/signature logic is
// plain enough to unit test against a map).
type memStore struct {
	mu        sync.Mutex
	values    map[string]string
	published []publishedMessage
}

type publishedMessage struct {
	channel, payload string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", state.ErrKeyMissing, key)
	}
	return v, nil
}

func (m *memStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStore) Publish(ctx context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{channel, payload})
	return nil
}

func TestIssueToken_ThenValidate(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)

	token, err := issuer.IssueToken(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if len(token) != tokenBytes*2 {
		t.Fatalf("expected %d hex chars, got %d", tokenBytes*2, len(token))
	}

	ok, err := issuer.validate(context.Background(), "job-1", token)
	if err != nil || !ok {
		t.Fatalf("expected valid token, ok=%v err=%v", ok, err)
	}

	ok, err = issuer.validate(context.Background(), "job-1", "wrong-token")
	if err != nil || ok {
		t.Fatalf("expected mismatched token to be rejected, ok=%v err=%v", ok, err)
	}

	ok, err = issuer.validate(context.Background(), "job-unknown", token)
	if err != nil || ok {
		t.Fatalf("expected missing key to be rejected, ok=%v err=%v", ok, err)
	}
}

func TestHandler_RejectsBadToken_NoStateMutation(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)
	if _, err := issuer.IssueToken(context.Background(), "job-2"); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	h := NewHandler(Config{Issuer: issuer, Store: store})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/memories?job_id=job-2&token=BAD", strings.NewReader(`{"status":"PARSE"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if _, ok := store.values[statusKey("job-2")]; ok {
		t.Fatal("expected no status key written on rejected callback")
	}
	if len(store.published) != 0 {
		t.Fatal("expected no publish on rejected callback")
	}
}

func TestHandler_AcceptsValidToken_WritesStatusAndPublishes(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)
	token, _ := issuer.IssueToken(context.Background(), "job-3")

	h := NewHandler(Config{Issuer: issuer, Store: store})
	url := fmt.Sprintf("/api/webhooks/memories?job_id=job-3&token=%s", token)
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(`{"status":"PARSE"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.values[statusKey("job-3")] != "PARSE" {
		t.Fatalf("expected status key written, got %q", store.values[statusKey("job-3")])
	}
	if len(store.published) != 1 || store.published[0].channel != channelName("job-3") {
		t.Fatalf("expected exactly one publish on job-3's channel, got %#v", store.published)
	}
}

func TestHandler_GETUsesQueryStatus(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)
	token, _ := issuer.IssueToken(context.Background(), "job-4")

	h := NewHandler(Config{Issuer: issuer, Store: store})
	url := fmt.Sprintf("/api/webhooks/memories?job_id=job-4&token=%s&status=PARSE_ERROR", token)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.values[statusKey("job-4")] != "PARSE_ERROR" {
		t.Fatalf("expected PARSE_ERROR status, got %q", store.values[statusKey("job-4")])
	}
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)
	token, _ := issuer.IssueToken(context.Background(), "job-5")

	h := NewHandler(Config{Issuer: issuer, Store: store, SigningKey: "secret"})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/webhooks/memories?job_id=job-5&token=%s", token), strings.NewReader(`{"status":"PARSE"}`))
	req.Header.Set("X-Memories-Signature", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
}

func TestHandler_AcceptsValidSignature(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)
	token, _ := issuer.IssueToken(context.Background(), "job-6")

	body := `{"status":"PARSE"}`
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(body))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	h := NewHandler(Config{Issuer: issuer, Store: store, SigningKey: "secret"})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/webhooks/memories?job_id=job-6&token=%s", token), strings.NewReader(body))
	req.Header.Set("X-Memories-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_MissingStatusFieldRejected(t *testing.T) {
	store := newMemStore()
	issuer := NewIssuer(store, time.Hour)
	token, _ := issuer.IssueToken(context.Background(), "job-7")

	h := NewHandler(Config{Issuer: issuer, Store: store})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/webhooks/memories?job_id=job-7&token=%s", token), strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", rec.Code)
	}
}
