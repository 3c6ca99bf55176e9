package media

import (
	"context"
	"os"
	"path/filepath"
)

// ConcatVideo concatenates videoPaths (already-compatible, re-encoded
// segments) into outputPath using the concat demuxer with a file list,
// re-encoding the result rather than stream-copying across
// heterogeneous segments (spec §4.7).
func (t *Toolchain) ConcatVideo(ctx context.Context, videoPaths []string, outputPath string) error {
	listPath, err := tempListFile(filepath.Dir(outputPath), videoPaths)
	if err != nil {
		return &ToolchainError{Op: "concat_video", Err: err}
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-an",
		outputPath,
	}
	return t.run(ctx, "concat_video", t.defaultTimeout, args, outputPath)
}

// ConcatAudio concatenates audioPaths into a single baseline-codec
// audio track (spec §4.7: "re-encode audio concat to a single baseline
// codec track"). Also used for the Original Audio Marker's
// [tts_audio, original_audio] concatenation (spec §4.3-S11).
func (t *Toolchain) ConcatAudio(ctx context.Context, audioPaths []string, outputPath string) error {
	listPath, err := tempListFile(filepath.Dir(outputPath), audioPaths)
	if err != nil {
		return &ToolchainError{Op: "concat_audio", Err: err}
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c:a", "aac",
		outputPath,
	}
	return t.run(ctx, "concat_audio", t.defaultTimeout, args, outputPath)
}
