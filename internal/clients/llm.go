package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatMessage is a single turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a request to the LLM client's Chat method. Used for
// narration rewrite (S10), intro generation (S10), and unified
// extraction's AI character pass (S9).
type ChatRequest struct {
	Messages       []ChatMessage
	Model          string // client default if empty
	Temperature    float64
	MaxTokens      int
	ResponseSchema json.RawMessage // non-nil requests strict JSON output
}

// ChatResult is the LLM client's response.
type ChatResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Model            string
	Attempts         int
}

// LLMClient is the narration/text-generation external service client
// (spec §2 component 4, §4.4).
type LLMClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

// OpenRouterConfig configures an OpenRouterClient.
type OpenRouterConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	RPS          float64
	MaxRetries   int
	Timeout      time.Duration
}

// OpenRouterClient is the LLM client, modeled on OpenRouter's chat
// completions API (narration rewrite, intro generation, text-only
// transforms, spec §4.4).
type OpenRouterClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	maxRetries   int
	limiter      *RateLimiter
	http         *http.Client
}

// NewOpenRouterClient builds an OpenRouterClient, applying spec-named
// defaults (base URL, default model, retry count) when left zero.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic/claude-opus-4.6"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &OpenRouterClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		limiter:      NewRateLimiter(cfg.RPS),
		http:         &http.Client{Timeout: cfg.Timeout},
	}
}

type openRouterRequest struct {
	Model          string               `json:"model"`
	Messages       []ChatMessage        `json:"messages"`
	Temperature    float64              `json:"temperature,omitempty"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterRespFmt   `json:"response_format,omitempty"`
}

type openRouterRespFmt struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type openRouterResponse struct {
	Model   string `json:"model"`
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a chat-completion request, retrying transient failures
// with linear backoff up to the configured MaxRetries (spec §7, §4.4).
func (c *OpenRouterClient) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	orReq := &openRouterRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseSchema != nil {
		orReq.ResponseFormat = &openRouterRespFmt{Type: "json_schema", JSONSchema: req.ResponseSchema}
	}

	result, err := withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) (*ChatResult, error) {
		resp, err := c.doRequest(ctx, orReq)
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			code := fmt.Sprintf("%v", resp.Error.Code)
			if IsTransientMessage(resp.Error.Message) || IsTransientCode(code) {
				return nil, &TransientError{Message: resp.Error.Message}
			}
			return nil, &FatalError{Message: resp.Error.Message}
		}
		if len(resp.Choices) == 0 {
			return nil, &TransientError{Message: "empty choices in response"}
		}
		return &ChatResult{
			Content:          resp.Choices[0].Message.Content,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			Model:            resp.Model,
			Attempts:         attempt,
		}, nil
	})
	return result, err
}

func (c *OpenRouterClient) doRequest(ctx context.Context, body *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Op: "llm.chat", Err: ctx.Err()}
		}
		return nil, &TransientError{Err: err, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err, Message: "failed reading response body"}
	}

	if IsTransientStatus(resp.StatusCode) {
		c.limiter.Record429(parseRetryAfter(resp.Header.Get("Retry-After")))
		return nil, &TransientError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FatalError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &parsed, nil
}

// ChatText is a convenience wrapper for plain text-only prompts (the
// 20-30 word intro generation in S10).
func (c *OpenRouterClient) ChatText(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	result, err := c.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(header + "s"); err == nil {
		return seconds
	}
	return 0
}

var _ LLMClient = (*OpenRouterClient)(nil)
