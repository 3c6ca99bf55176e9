package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VectorMatch is a single similarity search hit.
type VectorMatch struct {
	ID    string
	Score float64
	Start float64
	End   float64
}

// VectorStoreClient is the optional vector-match enricher referenced
// by clip-matching refinement (spec §4.3-S12, §2 component 4). Its
// internals are out of scope; only the shape of inputs/outputs is
// specified.
type VectorStoreClient interface {
	Query(ctx context.Context, videoID, text string, topK int) ([]VectorMatch, error)
}

// VectorStoreConfig configures an HTTPVectorStoreClient.
type VectorStoreConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// HTTPVectorStoreClient is a thin client over a generic vector-search
// HTTP endpoint.
type HTTPVectorStoreClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	http       *http.Client
}

// NewHTTPVectorStoreClient builds an HTTPVectorStoreClient.
func NewHTTPVectorStoreClient(cfg VectorStoreConfig) *HTTPVectorStoreClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &HTTPVectorStoreClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

type vectorQueryRequest struct {
	VideoID string `json:"video_id"`
	Text    string `json:"text"`
	TopK    int    `json:"top_k"`
}

// Query returns the topK best-matching segments for text against
// videoID's indexed embeddings.
func (c *HTTPVectorStoreClient) Query(ctx context.Context, videoID, text string, topK int) ([]VectorMatch, error) {
	if c.baseURL == "" {
		return nil, nil
	}
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) ([]VectorMatch, error) {
		reqBody, err := json.Marshal(vectorQueryRequest{VideoID: videoID, Text: text, TopK: topK})
		if err != nil {
			return nil, fmt.Errorf("marshal vector query: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("build vector query request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{Op: "vectorstore.query", Err: ctx.Err()}
			}
			return nil, &TransientError{Err: err, Message: err.Error()}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransientError{Err: err, Message: "failed reading vector query response"}
		}
		if IsTransientStatus(resp.StatusCode) {
			return nil, &TransientError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &FatalError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}

		var parsed struct {
			Matches []VectorMatch `json:"matches"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal vector query response: %w", err)
		}
		return parsed.Matches, nil
	})
}

var _ VectorStoreClient = (*HTTPVectorStoreClient)(nil)
