package config

import "time"

// Config holds recap's runtime configuration.
// Stored at {home}/config.yaml.
type Config struct {
	State    StateConfig    `mapstructure:"state" yaml:"state"`
	Blob     BlobConfig     `mapstructure:"blob" yaml:"blob"`
	Media    MediaConfig    `mapstructure:"media" yaml:"media"`
	Clients  ClientsConfig  `mapstructure:"clients" yaml:"clients"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Webhook  WebhookConfig  `mapstructure:"webhook" yaml:"webhook"`
}

// StateConfig configures the State Store Adapter (§4.1).
type StateConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	Password       string `mapstructure:"password" yaml:"password"`
	DB             int    `mapstructure:"db" yaml:"db"`
	MaxCASAttempts int    `mapstructure:"max_cas_attempts" yaml:"max_cas_attempts"`
}

// BlobConfig configures the Blob Store Adapter.
type BlobConfig struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	PublicEndpoint  string `mapstructure:"public_endpoint" yaml:"public_endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl" yaml:"presign_ttl"`
}

// RewriteToPublic rewrites an internal object URL to the public-facing endpoint,
// per §6 "the output bucket is publicly readable; presigned URLs rewrite
// internal hostnames to the public endpoint."
func (b BlobConfig) RewriteToPublic(internalURL string) string {
	if b.PublicEndpoint == "" || b.Endpoint == "" {
		return internalURL
	}
	if len(internalURL) >= len(b.Endpoint) && internalURL[:len(b.Endpoint)] == b.Endpoint {
		return b.PublicEndpoint + internalURL[len(b.Endpoint):]
	}
	return internalURL
}

// MediaConfig configures the Media Toolchain Adapter.
type MediaConfig struct {
	FFmpegPath       string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath      string        `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	MaxTimeout       time.Duration `mapstructure:"max_timeout" yaml:"max_timeout"`
}

// ClientsConfig configures the four external service clients (§4.2 item 4).
type ClientsConfig struct {
	Understanding UnderstandingConfig `mapstructure:"understanding" yaml:"understanding"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	TTS           TTSConfig           `mapstructure:"tts" yaml:"tts"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store" yaml:"vector_store"`
}

// UnderstandingConfig configures the video-understanding service client.
type UnderstandingConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
	StatusTimeout time.Duration `mapstructure:"status_timeout" yaml:"status_timeout"`
	ChatTimeout   time.Duration `mapstructure:"chat_timeout" yaml:"chat_timeout"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// LLMConfig configures the narration/intro LLM client.
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel string  `mapstructure:"default_model" yaml:"default_model"`
	RPS          float64 `mapstructure:"rps" yaml:"rps"`
	MaxRetries   int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// TTSConfig configures the TTS client.
type TTSConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"` // "elevenlabs" | "openai"
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Voice      string        `mapstructure:"voice" yaml:"voice"`
	Model      string        `mapstructure:"model" yaml:"model"` // turbo model per §4.3-S11
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// VectorStoreConfig configures the optional vector store enricher.
type VectorStoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
}

// PipelineConfig configures worker/pipeline behavior.
type PipelineConfig struct {
	WorkDir                 string        `mapstructure:"work_dir" yaml:"work_dir"`
	PollInterval            time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StitchTimeout           time.Duration `mapstructure:"stitch_timeout" yaml:"stitch_timeout"`
	ClipMatchBaseConfidence float64       `mapstructure:"clip_match_base_confidence" yaml:"clip_match_base_confidence"`
	ClipMatchFullVideoBonus float64       `mapstructure:"clip_match_full_video_bonus" yaml:"clip_match_full_video_bonus"`
	RetentionSweepEvery     time.Duration `mapstructure:"retention_sweep_every" yaml:"retention_sweep_every"`
	RetentionMaxAgeHours    int           `mapstructure:"retention_max_age_hours" yaml:"retention_max_age_hours"`
	SeriesCharacterTTL      time.Duration `mapstructure:"series_character_ttl" yaml:"series_character_ttl"`
}

// WebhookConfig configures the inbound webhook callback.
type WebhookConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	SigningKey  string        `mapstructure:"signing_key" yaml:"signing_key"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// applyDefaults fills zero-valued fields with DefaultConfig()'s values.
// Needed because viper.Unmarshal only fills fields present in config
// sources; SetDefault handles top-level maps but not nested zero structs
// reliably across viper versions, so we backstop here.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.State.MaxCASAttempts == 0 {
		c.State.MaxCASAttempts = d.State.MaxCASAttempts
	}
	if c.Blob.PresignTTL == 0 {
		c.Blob.PresignTTL = d.Blob.PresignTTL
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = d.Media.FFmpegPath
	}
	if c.Media.FFprobePath == "" {
		c.Media.FFprobePath = d.Media.FFprobePath
	}
	if c.Media.ProgressInterval == 0 {
		c.Media.ProgressInterval = d.Media.ProgressInterval
	}
	if c.Media.DefaultTimeout == 0 {
		c.Media.DefaultTimeout = d.Media.DefaultTimeout
	}
	if c.Media.MaxTimeout == 0 {
		c.Media.MaxTimeout = d.Media.MaxTimeout
	}
	if c.Clients.Understanding.UploadTimeout == 0 {
		c.Clients.Understanding = d.Clients.Understanding
	}
	if c.Clients.LLM.RPS == 0 {
		c.Clients.LLM = d.Clients.LLM
	}
	if c.Clients.TTS.Model == "" {
		c.Clients.TTS = d.Clients.TTS
	}
	if c.Pipeline.PollInterval == 0 {
		c.Pipeline.PollInterval = d.Pipeline.PollInterval
	}
	if c.Pipeline.WorkDir == "" {
		c.Pipeline.WorkDir = d.Pipeline.WorkDir
	}
	if c.Pipeline.StitchTimeout == 0 {
		c.Pipeline.StitchTimeout = d.Pipeline.StitchTimeout
	}
	if c.Pipeline.ClipMatchBaseConfidence == 0 {
		c.Pipeline.ClipMatchBaseConfidence = d.Pipeline.ClipMatchBaseConfidence
	}
	if c.Pipeline.ClipMatchFullVideoBonus == 0 {
		c.Pipeline.ClipMatchFullVideoBonus = d.Pipeline.ClipMatchFullVideoBonus
	}
	if c.Pipeline.RetentionSweepEvery == 0 {
		c.Pipeline.RetentionSweepEvery = d.Pipeline.RetentionSweepEvery
	}
	if c.Pipeline.RetentionMaxAgeHours == 0 {
		c.Pipeline.RetentionMaxAgeHours = d.Pipeline.RetentionMaxAgeHours
	}
	if c.Pipeline.SeriesCharacterTTL == 0 {
		c.Pipeline.SeriesCharacterTTL = d.Pipeline.SeriesCharacterTTL
	}
	if c.Webhook.TokenTTL == 0 {
		c.Webhook.TokenTTL = d.Webhook.TokenTTL
	}
}
