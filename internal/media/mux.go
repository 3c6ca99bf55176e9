package media

import "context"

// Mux combines a video-only track and an audio-only track into a
// single mp4, trimming to the shorter of the two (spec §4.7: "muxed
// with -shortest").
func (t *Toolchain) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		outputPath,
	}
	return t.run(ctx, "mux", t.defaultTimeout, args, outputPath)
}
