package media

import (
	"context"
	"fmt"
)

// MinStretchFactor and MaxStretchFactor bound the elastic stitcher's
// time-stretch factor (spec §4.7: "clamped to [0.1, 10.0]").
const (
	MinStretchFactor = 0.1
	MaxStretchFactor = 10.0
)

// ClampStretchFactor clamps factor into [MinStretchFactor, MaxStretchFactor].
func ClampStretchFactor(factor float64) float64 {
	if factor < MinStretchFactor {
		return MinStretchFactor
	}
	if factor > MaxStretchFactor {
		return MaxStretchFactor
	}
	return factor
}

// Stretch time-stretches inputPath's video by factor = targetDuration /
// sourceDuration using the presentation-timestamp filter, re-encoding
// (spec §4.7). factor > 1 slows the clip down (setpts multiplies PTS
// by factor); factor < 1 speeds it up.
func (t *Toolchain) Stretch(ctx context.Context, inputPath, outputPath string, factor float64) error {
	factor = ClampStretchFactor(factor)
	args := []string{
		"-y", "-i", inputPath,
		"-vf", fmt.Sprintf("setpts=%.6f*PTS", factor),
		"-c:v", "libx264",
		"-an",
		outputPath,
	}
	return t.run(ctx, "stretch", t.defaultTimeout, args, outputPath)
}
