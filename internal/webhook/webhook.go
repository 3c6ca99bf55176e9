// Package webhook implements the inbound webhook callback (spec §4.6,
// §6): token issuance/validation backed by the state store, HMAC-SHA256
// signature verification over the raw request body, and a thin
// http.Handler that records the callback's status and fans it out over
// pub/sub to whichever worker is waiting on it.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/recapforge/recap/internal/state"
)

// DefaultTokenTTL matches spec §6's "6-hour TTL" for the webhook token.
const DefaultTokenTTL = 6 * time.Hour

// tokenBytes is the byte length of an issued token before hex-encoding.
const tokenBytes = 32

// Store is the subset of the State Store Adapter the webhook needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Publish(ctx context.Context, channel, payload string) error
}

// Issuer issues and validates per-job webhook tokens.
type Issuer struct {
	store Store
	ttl   time.Duration
}

// NewIssuer builds an Issuer. ttl <= 0 uses DefaultTokenTTL.
func NewIssuer(store Store, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{store: store, ttl: ttl}
}

func tokenKey(jobID string) string {
	return fmt.Sprintf("memories:webhook_token:%s", jobID)
}

func statusKey(jobID string) string {
	return fmt.Sprintf("memories:status:%s", jobID)
}

func channelName(jobID string) string {
	return fmt.Sprintf("memories:webhook:%s", jobID)
}

// IssueToken generates a random token for jobID, stores it under
// memories:webhook_token:{job_id} with the issuer's TTL, and returns it
// for embedding into the callback URL handed to the understanding
// service.
func (i *Issuer) IssueToken(ctx context.Context, jobID string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("webhook: generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := i.store.SetWithTTL(ctx, tokenKey(jobID), token, i.ttl); err != nil {
		return "", fmt.Errorf("webhook: store token: %w", err)
	}
	return token, nil
}

// validate reports whether token matches the stored token for jobID.
// A missing key (expired or never issued) and a mismatched token are
// both rejections (spec P10: "missing, mismatched, or expired token is
// rejected without state mutation").
func (i *Issuer) validate(ctx context.Context, jobID, token string) (bool, error) {
	stored, err := i.store.Get(ctx, tokenKey(jobID))
	if err != nil {
		if errors.Is(err, state.ErrKeyMissing) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1, nil
}

// Payload is the callback body's shape. Status is the only field the
// wait protocol requires (spec §4.6). Extra is tagged json:"-", so
// decoding never fills it and any other body fields are ignored.
type Payload struct {
	Status string                 `json:"status"`
	Extra  map[string]interface{} `json:"-"`
}

// Handler is the http.Handler behind `{webhook_base_url}/api/webhooks/memories`.
type Handler struct {
	issuer     *Issuer
	store      Store
	signingKey string
	statusTTL  time.Duration
	logger     *slog.Logger
}

// Config configures a Handler.
type Config struct {
	Issuer     *Issuer
	Store      Store
	SigningKey string        // empty disables signature verification
	StatusTTL  time.Duration // TTL applied to the written status key
	Logger     *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = DefaultTokenTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		issuer:     cfg.Issuer,
		store:      cfg.Store,
		signingKey: cfg.SigningKey,
		statusTTL:  cfg.StatusTTL,
		logger:     logger,
	}
}

// ServeHTTP implements GET/POST {base}/api/webhooks/memories?job_id=X&token=Y
// (spec §6, P10, SC3).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	token := r.URL.Query().Get("token")
	if jobID == "" || token == "" {
		http.Error(w, "missing job_id or token", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ok, err := h.issuer.validate(ctx, jobID, token)
	if err != nil {
		h.logger.Error("webhook token validation error", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	status, body, err := h.readPayload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.signingKey != "" && r.Method == http.MethodPost {
		sig := r.Header.Get("X-Memories-Signature")
		if !verifySignature(h.signingKey, body, sig) {
			http.Error(w, "signature mismatch", http.StatusUnauthorized)
			return
		}
	}

	if err := h.store.SetWithTTL(ctx, statusKey(jobID), status, h.statusTTL); err != nil {
		h.logger.Error("webhook status write failed", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.store.Publish(ctx, channelName(jobID), status); err != nil {
		h.logger.Error("webhook publish failed", "job_id", jobID, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

// readPayload extracts the raw callback status: from POST, a JSON body
// with a "status" field (the raw bytes are also returned for signature
// verification); from GET, the "status" query parameter.
func (h *Handler) readPayload(r *http.Request) (status string, rawBody []byte, err error) {
	if r.Method == http.MethodGet {
		status = r.URL.Query().Get("status")
		if status == "" {
			return "", nil, fmt.Errorf("missing status")
		}
		return status, nil, nil
	}

	rawBody, err = io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return "", nil, fmt.Errorf("parse body: %w", err)
	}
	if p.Status == "" {
		return "", nil, fmt.Errorf("missing status field")
	}
	return p.Status, rawBody, nil
}

// verifySignature checks sig (hex digest, optionally "sha256="-prefixed)
// against an HMAC-SHA256 of body keyed by signingKey (spec §6).
func verifySignature(signingKey string, body []byte, sig string) bool {
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
