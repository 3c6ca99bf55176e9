// Package stitch implements the Elastic Stitcher (spec §4.7): given an
// ordered list of scenes, each pairing a source video range with a
// finished narration audio file, it time-stretches every range to
// match its audio's duration and muxes the concatenated result into a
// single output file.
package stitch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/recapforge/recap/internal/media"
)

// Scene is one elastic-stitch input: a source video range, the audio
// file it must be stretched to match, and that audio's duration.
type Scene struct {
	ID            int
	SourceStart   float64
	SourceEnd     float64
	AudioPath     string
	TargetSeconds float64
}

func (s Scene) sourceDuration() float64 {
	return s.SourceEnd - s.SourceStart
}

// Stitcher drives a media.Toolchain through the stitch contract.
type Stitcher struct {
	toolchain *media.Toolchain
}

// New builds a Stitcher over toolchain.
func New(toolchain *media.Toolchain) *Stitcher {
	return &Stitcher{toolchain: toolchain}
}

// Result reports the stretch factor actually applied to each scene, so
// callers can check P8 (|output segment duration - target duration| <=
// 0.1s) against the probed result.
type Result struct {
	SceneID       int
	StretchFactor float64
	ClampedFactor bool
}

// Stitch produces outputPath: sourcePath's scenes each cut, stretched
// to their audio's duration, and concatenated, muxed against the
// concatenation of every scene's audio (spec §4.7). workDir holds
// intermediate files and is not cleaned up by Stitch; the caller owns
// its lifecycle (the pipeline worker's per-job working directory,
// spec §5 "shared-resource policy").
func (s *Stitcher) Stitch(ctx context.Context, sourcePath, workDir string, scenes []Scene, outputPath string) ([]Result, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("stitch: no scenes")
	}

	stretchedVideos := make([]string, len(scenes))
	results := make([]Result, len(scenes))

	for i, sc := range scenes {
		if sc.sourceDuration() <= 0 {
			return nil, fmt.Errorf("stitch: scene %d has non-positive source duration [%.3f, %.3f)", sc.ID, sc.SourceStart, sc.SourceEnd)
		}
		if sc.TargetSeconds <= 0 {
			return nil, fmt.Errorf("stitch: scene %d has non-positive target duration", sc.ID)
		}
		if _, err := os.Stat(sc.AudioPath); err != nil {
			return nil, fmt.Errorf("stitch: scene %d audio file missing: %w", sc.ID, media.ErrMissingOutput)
		}

		cutPath := filepath.Join(workDir, fmt.Sprintf("scene-%03d-cut.mp4", sc.ID))
		if err := s.toolchain.CutVideo(ctx, sourcePath, cutPath, sc.SourceStart, sc.SourceEnd); err != nil {
			return nil, fmt.Errorf("stitch: cut scene %d: %w", sc.ID, err)
		}

		rawFactor := sc.TargetSeconds / sc.sourceDuration()
		factor := media.ClampStretchFactor(rawFactor)

		stretchedPath := filepath.Join(workDir, fmt.Sprintf("scene-%03d-stretched.mp4", sc.ID))
		if err := s.toolchain.Stretch(ctx, cutPath, stretchedPath, factor); err != nil {
			return nil, fmt.Errorf("stitch: stretch scene %d: %w", sc.ID, err)
		}

		stretchedVideos[i] = stretchedPath
		results[i] = Result{SceneID: sc.ID, StretchFactor: factor, ClampedFactor: factor != rawFactor}
	}

	concatVideoPath := filepath.Join(workDir, "concat-video.mp4")
	if err := s.toolchain.ConcatVideo(ctx, stretchedVideos, concatVideoPath); err != nil {
		return nil, fmt.Errorf("stitch: concat video: %w", err)
	}

	audioPaths := make([]string, len(scenes))
	for i, sc := range scenes {
		audioPaths[i] = sc.AudioPath
	}
	concatAudioPath := filepath.Join(workDir, "concat-audio.m4a")
	if err := s.toolchain.ConcatAudio(ctx, audioPaths, concatAudioPath); err != nil {
		return nil, fmt.Errorf("stitch: concat audio: %w", err)
	}

	if err := s.toolchain.Mux(ctx, concatVideoPath, concatAudioPath, outputPath); err != nil {
		return nil, fmt.Errorf("stitch: mux: %w", err)
	}

	return results, nil
}
