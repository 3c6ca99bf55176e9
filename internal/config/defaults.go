package config

import "time"

// DefaultConfig returns configuration with sensible defaults, matching the
// timeouts and retry counts named in spec §5.
func DefaultConfig() *Config {
	return &Config{
		State: StateConfig{
			Addr:           "localhost:6379",
			DB:             0,
			MaxCASAttempts: 10,
		},
		Blob: BlobConfig{
			Region:         "us-east-1",
			Bucket:         "recap-media",
			ForcePathStyle: true,
			PresignTTL:     1 * time.Hour,
		},
		Media: MediaConfig{
			FFmpegPath:       "ffmpeg",
			FFprobePath:      "ffprobe",
			ProgressInterval: 30 * time.Second,
			DefaultTimeout:   900 * time.Second,
			MaxTimeout:       7200 * time.Second,
		},
		Clients: ClientsConfig{
			Understanding: UnderstandingConfig{
				BaseURL:       "${UNDERSTANDING_BASE_URL}",
				APIKey:        "${UNDERSTANDING_API_KEY}",
				UploadTimeout: 600 * time.Second,
				StatusTimeout: 30 * time.Second,
				ChatTimeout:   180 * time.Second,
				WaitTimeout:   1800 * time.Second,
				MaxRetries:    3,
			},
			LLM: LLMConfig{
				BaseURL:      "https://openrouter.ai/api/v1",
				APIKey:       "${OPENROUTER_API_KEY}",
				DefaultModel: "anthropic/claude-opus-4.6",
				RPS:          150.0,
				MaxRetries:   3,
			},
			TTS: TTSConfig{
				Provider:   "elevenlabs",
				APIKey:     "${ELEVENLABS_API_KEY}",
				Model:      "eleven_turbo_v2_5",
				Timeout:    60 * time.Second,
				MaxRetries: 3,
			},
			VectorStore: VectorStoreConfig{
				Enabled: false,
				BaseURL: "${VECTOR_STORE_BASE_URL}",
				APIKey:  "${VECTOR_STORE_API_KEY}",
			},
		},
		Pipeline: PipelineConfig{
			WorkDir:                 "/tmp/recap-work",
			PollInterval:            500 * time.Millisecond,
			StitchTimeout:           1800 * time.Second,
			ClipMatchBaseConfidence: 0.40,
			ClipMatchFullVideoBonus: 0.10,
			RetentionSweepEvery:     1 * time.Hour,
			RetentionMaxAgeHours:    72,
			SeriesCharacterTTL:      30 * 24 * time.Hour,
		},
		Webhook: WebhookConfig{
			BaseURL:    "${WEBHOOK_BASE_URL}",
			SigningKey: "${WEBHOOK_SIGNING_KEY}",
			TokenTTL:   6 * time.Hour,
		},
	}
}
