package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WordTimestamp is a single word's position in synthesized audio.
type WordTimestamp struct {
	Word  string
	Start float64 // seconds
	End   float64 // seconds
}

// SpeechResult is the TTS client's response.
type SpeechResult struct {
	Audio          []byte
	EstimatedMS    int // rough duration estimate from char count, not a decode
	Words          []WordTimestamp
	CharCount      int
}

// TTSClient is the text-to-speech external service client (spec §2
// component 4, §4.3-S11): speech and speech-with-timestamps. It has no
// duration probe; SpeechResult.EstimatedMS is a char-count estimate.
type TTSClient interface {
	Speech(ctx context.Context, text, voice string) (*SpeechResult, error)
	SpeechWithTimestamps(ctx context.Context, text, voice string) (*SpeechResult, error)
}

// ElevenLabsConfig configures an ElevenLabsClient.
type ElevenLabsConfig struct {
	APIKey     string
	Voice      string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// ElevenLabsClient implements TTSClient against the ElevenLabs API.
type ElevenLabsClient struct {
	apiKey     string
	voice      string
	model      string
	maxRetries int
	http       *http.Client
}

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// NewElevenLabsClient builds an ElevenLabsClient.
func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	if cfg.Model == "" {
		cfg.Model = "eleven_turbo_v2_5"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ElevenLabsClient{
		apiKey:     cfg.APIKey,
		voice:      cfg.Voice,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// estimateDurationMS mirrors the teacher's heuristic: ~150 wpm at ~5
// chars/word, used as a cheap pre-decode estimate before the audio
// file is probed by the media toolchain.
func estimateDurationMS(charCount int) int {
	return (charCount * 60 * 1000) / (150 * 5)
}

// Speech synthesizes text into audio with no word-level timing.
func (c *ElevenLabsClient) Speech(ctx context.Context, text, voice string) (*SpeechResult, error) {
	return c.synthesize(ctx, text, voice, false)
}

// SpeechWithTimestamps synthesizes text into audio and requests
// character/word alignment, used to drive clip-matching refinement
// timing (spec §4.3-S11, S12).
func (c *ElevenLabsClient) SpeechWithTimestamps(ctx context.Context, text, voice string) (*SpeechResult, error) {
	return c.synthesize(ctx, text, voice, true)
}

func (c *ElevenLabsClient) synthesize(ctx context.Context, text, voice string, withTimestamps bool) (*SpeechResult, error) {
	if voice == "" {
		voice = c.voice
	}
	if voice == "" {
		return nil, &FatalError{Message: "voice is required"}
	}
	if text == "" {
		// Empty text yields a short silent placeholder (spec §4.3-S11).
		return &SpeechResult{Audio: silentPlaceholderMP3(), EstimatedMS: 500}, nil
	}

	body := elevenLabsRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}

	path := fmt.Sprintf("/text-to-speech/%s", voice)
	if withTimestamps {
		path = fmt.Sprintf("/text-to-speech/%s/with-timestamps", voice)
	}

	return withRetry(ctx, c.maxRetries, func(ctx context.Context, attempt int) (*SpeechResult, error) {
		return c.doRequest(ctx, path, body, withTimestamps, len(text))
	})
}

type elevenLabsTimestampedResponse struct {
	AudioBase64   string `json:"audio_base64"`
	Alignment     *elevenLabsAlignment `json:"alignment"`
}

type elevenLabsAlignment struct {
	Characters          []string  `json:"characters"`
	CharacterStartTimes []float64 `json:"character_start_times_seconds"`
	CharacterEndTimes   []float64 `json:"character_end_times_seconds"`
}

func (c *ElevenLabsClient) doRequest(ctx context.Context, path string, body elevenLabsRequest, withTimestamps bool, charCount int) (*SpeechResult, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, elevenLabsBaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Op: "tts.speech", Err: ctx.Err()}
		}
		return nil, &TransientError{Err: err, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err, Message: "failed reading tts response"}
	}

	if IsTransientStatus(resp.StatusCode) {
		return nil, &TransientError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FatalError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if !withTimestamps {
		return &SpeechResult{Audio: respBody, EstimatedMS: estimateDurationMS(charCount), CharCount: charCount}, nil
	}

	var parsed elevenLabsTimestampedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal tts with-timestamps response: %w", err)
	}
	audio, err := decodeBase64Audio(parsed.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}

	result := &SpeechResult{Audio: audio, EstimatedMS: estimateDurationMS(charCount), CharCount: charCount}
	if parsed.Alignment != nil {
		result.Words = charactersToWords(parsed.Alignment)
	}
	return result, nil
}

// charactersToWords collapses ElevenLabs' character-level alignment
// into word-level timestamps by splitting on whitespace boundaries.
func charactersToWords(a *elevenLabsAlignment) []WordTimestamp {
	var words []WordTimestamp
	var current []byte
	var start float64
	haveStart := false

	flush := func(end float64) {
		if len(current) > 0 {
			words = append(words, WordTimestamp{Word: string(current), Start: start, End: end})
			current = current[:0]
			haveStart = false
		}
	}

	for i, ch := range a.Characters {
		if ch == " " || ch == "\n" || ch == "\t" {
			end := 0.0
			if i < len(a.CharacterEndTimes) {
				end = a.CharacterEndTimes[i]
			}
			flush(end)
			continue
		}
		if !haveStart {
			if i < len(a.CharacterStartTimes) {
				start = a.CharacterStartTimes[i]
			}
			haveStart = true
		}
		current = append(current, []byte(ch)...)
	}
	if len(a.CharacterEndTimes) > 0 {
		flush(a.CharacterEndTimes[len(a.CharacterEndTimes)-1])
	} else {
		flush(start)
	}
	return words
}

// silentPlaceholderMP3 returns a 500ms silent PCM WAV clip. Empty
// narration text (e.g. a chapter with no dialogue assigned) still
// needs a playable audio segment to keep scene timing additive (spec
// §4.3-S11), so a synthesized silent clip stands in rather than
// skipping the TTS call entirely.
func silentPlaceholderMP3() []byte {
	const sampleRate = 22050
	const durationMS = 500
	numSamples := sampleRate * durationMS / 1000
	dataSize := numSamples * 2 // 16-bit mono

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	writeLE32(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE32(buf, 16)
	writeLE16(buf, 1) // PCM
	writeLE16(buf, 1) // mono
	writeLE32(buf, sampleRate)
	writeLE32(buf, sampleRate*2) // byte rate
	writeLE16(buf, 2)            // block align
	writeLE16(buf, 16)           // bits per sample
	buf.WriteString("data")
	writeLE32(buf, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeLE16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

func decodeBase64Audio(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

var _ TTSClient = (*ElevenLabsClient)(nil)
