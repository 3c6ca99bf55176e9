package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// PreparePlan is the S4 remux-vs-transcode decision (spec §4.3-S4).
type PreparePlan struct {
	Action         string // "remux" or "transcode"
	TargetHeight   int
	TargetBitrate  int64 // bits/sec, only meaningful for Action == "transcode"
	Reason         string
}

const (
	remuxMaxHeight    = 720
	remuxMaxSizeBytes = 400 * 1024 * 1024
	remuxMaxBitrate   = 2_500_000 // bits/sec

	transcodeTargetMaxBytes = 400 * 1024 * 1024
	min720pBitrate          = 1_200_000
	min1080pBitrate         = 2_000_000
)

// Plan decides whether a probed source can be fast-start remuxed or
// must be fully transcoded before upload (spec §4.3-S4 policy).
func Plan(p *ProbeResult) PreparePlan {
	if p.Height <= remuxMaxHeight && p.Size <= remuxMaxSizeBytes && p.Bitrate <= remuxMaxBitrate && p.SupportedBaseline() {
		return PreparePlan{Action: "remux", Reason: "within baseline thresholds"}
	}

	targetHeight := p.Height
	if targetHeight > remuxMaxHeight {
		targetHeight = remuxMaxHeight // never downscale below 720p, only downscale when source > 720p
	}

	var minBitrate int64 = min720pBitrate
	if targetHeight > remuxMaxHeight {
		minBitrate = min1080pBitrate
	}

	targetBitrate := minBitrate
	if p.Duration > 0 {
		// Aim for <= 400MB output: bits = bytes*8, rate = bits/seconds.
		bySize := int64(float64(transcodeTargetMaxBytes) * 8 / p.Duration.Seconds())
		if bySize > targetBitrate {
			targetBitrate = bySize
		}
	}

	return PreparePlan{
		Action:        "transcode",
		TargetHeight:  targetHeight,
		TargetBitrate: targetBitrate,
		Reason:        "outside baseline thresholds",
	}
}

// Remux stream-copies input to output with a fast-start flag only (no
// re-encode).
func (t *Toolchain) Remux(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-y", "-i", inputPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
	return t.run(ctx, "remux", t.defaultTimeout, args, outputPath)
}

// Transcode re-encodes input to the baseline profile at plan's target
// resolution/bitrate, watching a progress-file side channel and
// invoking onProgress on the configured interval (spec §4.3-S4).
func (t *Toolchain) Transcode(ctx context.Context, inputPath, outputPath string, duration time.Duration, plan PreparePlan, onProgress func(Progress)) error {
	progressFile := outputPath + ".progress"
	defer os.Remove(progressFile)

	timeout := t.TranscodeTimeout(duration)

	args := []string{"-y", "-i", inputPath}
	if plan.TargetHeight > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", plan.TargetHeight))
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-b:v", fmt.Sprintf("%d", plan.TargetBitrate),
		"-maxrate", fmt.Sprintf("%d", plan.TargetBitrate*3/2),
		"-bufsize", fmt.Sprintf("%d", plan.TargetBitrate*2),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-progress", progressFile,
		"-nostats",
		outputPath,
	)

	if onProgress != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go watchProgress(watchCtx, progressFile, duration, t.progressInterval, onProgress)
	}

	return t.run(ctx, "transcode", timeout, args, outputPath)
}

// run executes ffmpeg with args bounded by timeout, asserts outputPath
// exists and is non-empty afterward, and returns a typed ToolchainError
// on any failure.
func (t *Toolchain) run(ctx context.Context, op string, timeout time.Duration, args []string, outputPath string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	t.logger.Debug("running ffmpeg", "op", op, "args", strings.Join(args, " "))

	err := cmd.Run()
	if runCtx.Err() != nil {
		if outputPath != "" {
			os.Remove(outputPath)
		}
		return &ToolchainError{Op: op, Args: args, Timeout: true, Err: runCtx.Err()}
	}
	if err != nil {
		if outputPath != "" {
			os.Remove(outputPath)
		}
		return &ToolchainError{Op: op, Args: args, StderrTail: stderrTail(stderr.String(), 5), Err: err}
	}

	if outputPath != "" {
		if err := assertNonEmpty(outputPath); err != nil {
			return &ToolchainError{Op: op, Args: args, Err: err}
		}
	}
	return nil
}

func assertNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingOutput, path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrMissingOutput, path)
	}
	return nil
}

// tempListFile writes a concat-demuxer file list and returns its path.
func tempListFile(dir string, paths []string) (string, error) {
	listPath := filepath.Join(dir, fmt.Sprintf("concat-%d.txt", time.Now().UnixNano()))
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", "'\\''"))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return listPath, nil
}
