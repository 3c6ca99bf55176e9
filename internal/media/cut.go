package media

import (
	"context"
	"fmt"
)

// CutVideo extracts [start, end) from inputPath's video track into
// outputPath, re-encoding (no stream copy, since the cut range feeds
// the elastic stitcher which re-encodes every intermediate anyway).
func (t *Toolchain) CutVideo(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	if end <= start {
		return &ToolchainError{Op: "cut_video", Err: fmt.Errorf("invalid range [%.3f, %.3f)", start, end)}
	}
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-i", inputPath,
		"-c:v", "libx264",
		"-an",
		outputPath,
	}
	return t.run(ctx, "cut_video", t.defaultTimeout, args, outputPath)
}

// CutAudio extracts [start, end) from inputPath's audio track into
// outputPath. Used for Original Audio Marker clips (spec §3, §4.3-S11).
func (t *Toolchain) CutAudio(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	if end <= start {
		return &ToolchainError{Op: "cut_audio", Err: fmt.Errorf("invalid range [%.3f, %.3f)", start, end)}
	}
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-i", inputPath,
		"-vn",
		"-c:a", "aac",
		outputPath,
	}
	return t.run(ctx, "cut_audio", t.defaultTimeout, args, outputPath)
}
