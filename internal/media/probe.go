package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult is the subset of ffprobe's output the pipeline reasons
// about: source duration (used throughout the worker for timeout and
// stretch-factor math), container/codec compatibility, and the
// dimensions/bitrate driving the S4 remux-vs-transcode decision.
type ProbeResult struct {
	Path       string
	Size       int64
	Duration   time.Duration
	Format     string
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	Bitrate    int64 // bits per second
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Probe returns metadata about a media file via ffprobe.
func (t *Toolchain) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, &ToolchainError{Op: "probe", Args: cmd.Args, StderrTail: stderrTail(stderr.String(), 5), Err: err}
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, &ToolchainError{Op: "probe", Args: cmd.Args, Err: err}
	}

	result := &ProbeResult{Path: path, Format: parsed.Format.FormatName}
	if parsed.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(parsed.Format.Size, 10, 64)
	}
	if parsed.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(parsed.Format.BitRate, 10, 64)
	}
	if parsed.Format.Duration != "" {
		secs, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
		result.Duration = time.Duration(secs * float64(time.Second))
	}

	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
			}
		}
	}

	return result, nil
}

// SupportedBaseline reports whether a probed file already matches the
// baseline profile the understanding service accepts (spec §4.3-S3/S4):
// h264 video, aac audio, mp4/mov container.
func (p *ProbeResult) SupportedBaseline() bool {
	return strings.Contains(p.Format, "mp4") &&
		(p.VideoCodec == "h264" || p.VideoCodec == "h264_avc") &&
		(p.AudioCodec == "aac" || p.AudioCodec == "")
}
