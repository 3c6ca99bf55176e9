// Package media wraps ffmpeg/ffprobe as the Media Toolchain Adapter
// (spec §4.3, §4.7): probing, pre-upload remux/transcode, clip
// extraction, concatenation, time-stretching, and muxing, all behind
// typed errors and bounded timeouts.
package media

import (
	"log/slog"
	"time"
)

// Toolchain holds the paths to the external encoder/prober binaries
// and the timeout policy shared across all operations.
type Toolchain struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger

	progressInterval time.Duration
	defaultTimeout    time.Duration
	maxTimeout        time.Duration
}

// Config configures a Toolchain.
type Config struct {
	FFmpegPath       string
	FFprobePath      string
	ProgressInterval time.Duration
	DefaultTimeout   time.Duration
	MaxTimeout       time.Duration
	Logger           *slog.Logger
}

// New builds a Toolchain, applying the defaults named in spec §5.3 when
// fields are left zero.
func New(cfg Config) *Toolchain {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 30 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 900 * time.Second
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 7200 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolchain{
		ffmpegPath:       cfg.FFmpegPath,
		ffprobePath:      cfg.FFprobePath,
		logger:           logger,
		progressInterval: cfg.ProgressInterval,
		defaultTimeout:   cfg.DefaultTimeout,
		maxTimeout:       cfg.MaxTimeout,
	}
}

// TranscodeTimeout computes the timeout for a transcode of the given
// source duration: max(duration*2 + 600, 900), capped at MaxTimeout
// (spec §4.3-S4).
func (t *Toolchain) TranscodeTimeout(sourceDuration time.Duration) time.Duration {
	computed := sourceDuration*2 + 600*time.Second
	if computed < t.defaultTimeout {
		computed = t.defaultTimeout
	}
	if computed > t.maxTimeout {
		computed = t.maxTimeout
	}
	return computed
}
