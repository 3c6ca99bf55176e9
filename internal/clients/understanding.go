package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// RawChapter is a chapter as returned by the understanding service,
// before normalization (spec §3 Chapter, §4.3-S8).
type RawChapter struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// TranscriptSegment is one speaker turn in the audio transcript.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"` // generic label pre speaker_mapping
	Text    string  `json:"text"`
}

// KeyMoment is a notable beat bound to a chapter index (spec §3
// Structured Movie Data).
type KeyMoment struct {
	ChapterIndex int     `json:"chapter_index"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Speaker      string  `json:"speaker"`
	Dialogue     string  `json:"dialogue"`
	LeadIn       string  `json:"lead_in"`
}

// SceneBinding ties a chapter to a location and the characters present
// in it.
type SceneBinding struct {
	Chapter          int      `json:"chapter"`
	Location         string   `json:"location"`
	CharactersPresent []string `json:"characters_present"`
	Action           string   `json:"action"`
}

// RawCharacter is a character as surfaced by unified extraction or the
// visual-chat extractor, before merge (spec §3 Character).
type RawCharacter struct {
	Name           string   `json:"name"`
	Aliases        []string `json:"aliases"`
	Description    string   `json:"description"`
	Role           string   `json:"role"`
	VisualTraits   []string `json:"visual_traits"`
	Confidence     float64  `json:"confidence"`
	FirstAppearance float64 `json:"first_appearance"`
}

// StructuredMovieData is the unified-extraction response (spec §3,
// §4.3-S7).
type StructuredMovieData struct {
	Title           string            `json:"title"`
	Characters      []RawCharacter    `json:"characters"`
	CharacterGuide  string            `json:"character_guide"`
	Locations       []string          `json:"locations"`
	Factions        []string          `json:"factions"`
	Relationships   []string          `json:"relationships"`
	Scenes          []SceneBinding    `json:"scenes"`
	PlotSummary     string            `json:"plot_summary"`
	KeyMoments      []KeyMoment       `json:"key_moments"`
	SpeakerMapping  map[string]string `json:"speaker_mapping"`
}

// UploadResult is the response from uploading a video for processing.
type UploadResult struct {
	VideoID string
}

// StatusResult is a single status poll (spec §4.6).
type StatusResult struct {
	Status  string // e.g. "PARSE", "PARSE_ERROR", or an in-progress marker
	Message string
}

const (
	// StatusParse and StatusParseError are the terminal status values
	// the wait protocol (§4.6) recognizes.
	StatusParse      = "PARSE"
	StatusParseError = "PARSE_ERROR"
)

// UnderstandingClient is the video-understanding external service
// client (spec §2 component 4, §4.3-S3 through S9).
type UnderstandingClient interface {
	Upload(ctx context.Context, videoPath string, callbackURL string) (*UploadResult, error)
	Status(ctx context.Context, videoID string) (*StatusResult, error)
	ChapterSummary(ctx context.Context, videoID string) ([]RawChapter, error)
	AudioTranscript(ctx context.Context, videoID string) ([]TranscriptSegment, error)
	UnifiedExtraction(ctx context.Context, videoID string) (*StructuredMovieData, error)
	VisualChat(ctx context.Context, videoID, prompt string) (string, error)
	Delete(ctx context.Context, videoID string) error
	SupportedCodecs() []string
}

// UnderstandingConfig configures an HTTPUnderstandingClient.
type UnderstandingConfig struct {
	BaseURL           string
	APIKey            string
	UploadTimeout     time.Duration
	StatusTimeout     time.Duration
	ChatTimeout       time.Duration
	MaxRetries        int
	SupportedCodecs   []string
}

// HTTPUnderstandingClient implements UnderstandingClient over a
// generic multipart-upload + JSON-status/chat understanding API,
// grounded on the teacher's multipart/base64 document-upload shape.
type HTTPUnderstandingClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	codecs     []string

	uploadHTTP *http.Client
	statusHTTP *http.Client
	chatHTTP   *http.Client
}

// NewHTTPUnderstandingClient builds an HTTPUnderstandingClient,
// applying the per-call timeouts named in spec §5 ("upload 600 s,
// status 30 s, chat 90-180 s").
func NewHTTPUnderstandingClient(cfg UnderstandingConfig) *HTTPUnderstandingClient {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 600 * time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = 180 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SupportedCodecs == nil {
		cfg.SupportedCodecs = []string{"h264", "hevc", "vp9"}
	}
	return &HTTPUnderstandingClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		codecs:     cfg.SupportedCodecs,
		uploadHTTP: &http.Client{Timeout: cfg.UploadTimeout},
		statusHTTP: &http.Client{Timeout: cfg.StatusTimeout},
		chatHTTP:   &http.Client{Timeout: cfg.ChatTimeout},
	}
}

// SupportedCodecs reports the codec/container baseline the service
// accepts, consulted by S3's format-compatibility check.
func (c *HTTPUnderstandingClient) SupportedCodecs() []string {
	return c.codecs
}

// Upload sends the local video file and, when callbackURL is non-empty,
// registers it as the webhook target (spec §4.3-S5).
func (c *HTTPUnderstandingClient) Upload(ctx context.Context, videoPath string, callbackURL string) (*UploadResult, error) {
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) (*UploadResult, error) {
		return c.doUpload(ctx, videoPath, callbackURL)
	})
}

func (c *HTTPUnderstandingClient) doUpload(ctx context.Context, videoPath string, callbackURL string) (*UploadResult, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video for upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return nil, fmt.Errorf("create upload form field: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy video into upload body: %w", err)
	}
	if callbackURL != "" {
		if err := writer.WriteField("callback_url", callbackURL); err != nil {
			return nil, fmt.Errorf("write callback_url field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close upload form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos", &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var parsed struct {
		VideoID string `json:"video_id"`
	}
	if err := c.exec(ctx, c.uploadHTTP, httpReq, "understanding.upload", &parsed); err != nil {
		return nil, err
	}
	return &UploadResult{VideoID: parsed.VideoID}, nil
}

// Status polls the current parse status of an uploaded video (spec
// §4.6 polling mode).
func (c *HTTPUnderstandingClient) Status(ctx context.Context, videoID string) (*StatusResult, error) {
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) (*StatusResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+url.PathEscape(videoID)+"/status", nil)
		if err != nil {
			return nil, fmt.Errorf("build status request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		var parsed StatusResult
		if err := c.exec(ctx, c.statusHTTP, httpReq, "understanding.status", &parsed); err != nil {
			return nil, err
		}
		return &parsed, nil
	})
}

// ChapterSummary fetches raw chapters for a parsed video.
func (c *HTTPUnderstandingClient) ChapterSummary(ctx context.Context, videoID string) ([]RawChapter, error) {
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) ([]RawChapter, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+url.PathEscape(videoID)+"/chapters", nil)
		if err != nil {
			return nil, fmt.Errorf("build chapters request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		var parsed struct {
			Chapters []RawChapter `json:"chapters"`
		}
		if err := c.exec(ctx, c.statusHTTP, httpReq, "understanding.chapters", &parsed); err != nil {
			return nil, err
		}
		return parsed.Chapters, nil
	})
}

// AudioTranscript fetches the transcript with generic speaker labels,
// applied against speaker_mapping downstream (spec §4.3-S7).
func (c *HTTPUnderstandingClient) AudioTranscript(ctx context.Context, videoID string) ([]TranscriptSegment, error) {
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) ([]TranscriptSegment, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+url.PathEscape(videoID)+"/transcript", nil)
		if err != nil {
			return nil, fmt.Errorf("build transcript request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		var parsed struct {
			Segments []TranscriptSegment `json:"segments"`
		}
		if err := c.exec(ctx, c.statusHTTP, httpReq, "understanding.transcript", &parsed); err != nil {
			return nil, err
		}
		return parsed.Segments, nil
	})
}

// UnifiedExtraction performs the single combined extraction call (spec
// §4.3-S7, §3 Structured Movie Data).
func (c *HTTPUnderstandingClient) UnifiedExtraction(ctx context.Context, videoID string) (*StructuredMovieData, error) {
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) (*StructuredMovieData, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+url.PathEscape(videoID)+"/extract", nil)
		if err != nil {
			return nil, fmt.Errorf("build extraction request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		var parsed StructuredMovieData
		if err := c.exec(ctx, c.chatHTTP, httpReq, "understanding.extract", &parsed); err != nil {
			return nil, err
		}
		return &parsed, nil
	})
}

// VisualChat asks a free-form question grounded on the uploaded video
// (used for S9's visual character extraction).
func (c *HTTPUnderstandingClient) VisualChat(ctx context.Context, videoID, prompt string) (string, error) {
	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) (string, error) {
		reqBody, err := json.Marshal(map[string]string{"prompt": prompt})
		if err != nil {
			return "", fmt.Errorf("marshal visual chat request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos/"+url.PathEscape(videoID)+"/chat", bytes.NewReader(reqBody))
		if err != nil {
			return "", fmt.Errorf("build visual chat request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		var parsed struct {
			Response string `json:"response"`
		}
		if err := c.exec(ctx, c.chatHTTP, httpReq, "understanding.chat", &parsed); err != nil {
			return "", err
		}
		return parsed.Response, nil
	})
}

// Delete removes the uploaded video from the understanding service.
// Called best-effort at S16 and from the top-level failure handler.
func (c *HTTPUnderstandingClient) Delete(ctx context.Context, videoID string) error {
	_, err := withRetry(ctx, 1, func(ctx context.Context, attempt int) (struct{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/videos/"+url.PathEscape(videoID), nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("build delete request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		var discard map[string]any
		return struct{}{}, c.exec(ctx, c.statusHTTP, httpReq, "understanding.delete", &discard)
	})
	return err
}

func (c *HTTPUnderstandingClient) exec(ctx context.Context, httpClient *http.Client, req *http.Request, op string, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &TimeoutError{Op: op, Err: ctx.Err()}
		}
		return &TransientError{Err: err, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: err, Message: "failed reading " + op + " response"}
	}

	if IsTransientStatus(resp.StatusCode) {
		return &TransientError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return &FatalError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", op, err)
	}
	return nil
}

var _ UnderstandingClient = (*HTTPUnderstandingClient)(nil)
