package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAITTSConfig configures an OpenAITTSClient.
type OpenAITTSConfig struct {
	APIKey     string
	Model      string // "tts-1-hd" (default), "tts-1", "gpt-4o-mini-tts"
	Voice      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAITTSClient implements TTSClient against the official OpenAI SDK
// (spec §4 component 4 TTS client, alternate provider selected by
// TTSConfig.Provider == "openai"). OpenAI's speech endpoint returns no
// word-level alignment, so SpeechWithTimestamps falls back to the
// same char-count duration estimate Speech uses and an empty word
// list; callers that need timing (clip-matching refinement) should
// prefer the ElevenLabs provider.
type OpenAITTSClient struct {
	model  string
	voice  string
	client openai.Client
}

// NewOpenAITTSClient builds an OpenAITTSClient.
func NewOpenAITTSClient(cfg OpenAITTSConfig) *OpenAITTSClient {
	if cfg.Model == "" {
		cfg.Model = string(openai.SpeechModelTTS1HD)
	}
	if cfg.Voice == "" {
		cfg.Voice = "onyx"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	)

	return &OpenAITTSClient{model: cfg.Model, voice: cfg.Voice, client: client}
}

// Speech synthesizes text into audio with no word-level timing.
func (c *OpenAITTSClient) Speech(ctx context.Context, text, voice string) (*SpeechResult, error) {
	return c.synthesize(ctx, text, voice)
}

// SpeechWithTimestamps is identical to Speech for this provider; OpenAI's
// TTS API has no alignment endpoint.
func (c *OpenAITTSClient) SpeechWithTimestamps(ctx context.Context, text, voice string) (*SpeechResult, error) {
	return c.synthesize(ctx, text, voice)
}

func (c *OpenAITTSClient) synthesize(ctx context.Context, text, voice string) (*SpeechResult, error) {
	if voice == "" {
		voice = c.voice
	}
	if text == "" {
		return &SpeechResult{Audio: silentPlaceholderMP3(), EstimatedMS: 500}, nil
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(1.0),
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Op: "tts.speech", Err: ctx.Err()}
		}
		msg := err.Error()
		if IsTransientMessage(msg) {
			return nil, &TransientError{Message: msg, Err: err}
		}
		return nil, &FatalError{Message: msg}
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai tts audio: %w", err)
	}

	return &SpeechResult{
		Audio:       audio,
		EstimatedMS: estimateDurationMS(len(text)),
		CharCount:   len(text),
	}, nil
}

var _ TTSClient = (*OpenAITTSClient)(nil)

// NewTTSClient selects an ElevenLabs or OpenAI TTS client by provider
// name, defaulting to ElevenLabs when provider is empty or unrecognized.
func NewTTSClient(provider string, elevenCfg ElevenLabsConfig, openaiCfg OpenAITTSConfig) TTSClient {
	if strings.EqualFold(provider, "openai") {
		return NewOpenAITTSClient(openaiCfg)
	}
	return NewElevenLabsClient(elevenCfg)
}
