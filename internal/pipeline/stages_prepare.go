package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/recapforge/recap/internal/blobstore"
	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/media"
)

// stageInitialize is S1 (progress 1): mark the job processing. The
// working directory itself was already created by processJob.
func (w *Worker) stageInitialize(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 1, "Initializing"); err != nil {
		return err
	}
	status := jobs.StatusProcessing
	if _, err := w.jobs.UpdateJob(ctx, r.jobID, jobs.Patch{Status: &status}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// stageDownload is S2 (progress 5): pull the source object to local
// disk.
func (w *Worker) stageDownload(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 5, "Downloading source video"); err != nil {
		return err
	}

	ext := filepath.Ext(r.record.OriginalFilename)
	if ext == "" {
		ext = ".mp4"
	}
	r.sourcePath = filepath.Join(r.workDir, "source"+ext)

	f, err := os.Create(r.sourcePath)
	if err != nil {
		return fmt.Errorf("create source file: %w", err)
	}
	defer f.Close()

	key := r.record.SourceVideoKey
	if key == "" {
		key = blobstore.SourceVideoKey(r.record.ID)
	}
	if err := w.blob.DownloadToFile(ctx, key, f); err != nil {
		return fmt.Errorf("download source video: %w", err)
	}
	return nil
}

// stageFormatCheck is S3 (progress 6): probe the source and, if the
// understanding service doesn't accept its codec, transcode to a
// supported baseline profile before S4's size-driven optimization runs.
func (w *Worker) stageFormatCheck(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 6, "Checking format compatibility"); err != nil {
		return err
	}

	probe, err := w.media.Probe(ctx, r.sourcePath)
	if err != nil {
		return fmt.Errorf("probe source video: %w", err)
	}
	r.probe = probe

	if codecSupported(probe.VideoCodec, w.understanding.SupportedCodecs()) {
		return nil
	}

	compatPath := filepath.Join(r.workDir, "compat.mp4")
	plan := media.Plan(probe)
	plan.Action = "transcode" // codec itself is unsupported; size-based remux cannot apply
	if err := w.media.Transcode(ctx, r.sourcePath, compatPath, probe.Duration, plan, nil); err != nil {
		return fmt.Errorf("transcode to compatible format: %w", err)
	}
	r.sourcePath = compatPath

	reprobe, err := w.media.Probe(ctx, r.sourcePath)
	if err != nil {
		return fmt.Errorf("probe transcoded video: %w", err)
	}
	r.probe = reprobe
	return nil
}

func codecSupported(codec string, supported []string) bool {
	for _, c := range supported {
		if strings.EqualFold(c, codec) {
			return true
		}
	}
	return false
}

// stagePreUpload is S4 (progress 7): remux-vs-transcode policy, with a
// progress monitor republishing every 30 s on the transcode path (spec
// §4.3-S4).
func (w *Worker) stagePreUpload(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 7, "Optimizing for upload"); err != nil {
		return err
	}

	plan := media.Plan(r.probe)
	optimizedPath := filepath.Join(r.workDir, "optimized.mp4")

	switch plan.Action {
	case "remux":
		if err := w.media.Remux(ctx, r.sourcePath, optimizedPath); err != nil {
			return fmt.Errorf("remux source video: %w", err)
		}
	default:
		onProgress := func(p media.Progress) {
			pct := 7 + int(p.Percent*(10-7)/100)
			if pct > 10 {
				pct = 10
			}
			_ = w.publish(ctx, r, pct, "Transcoding for upload")
		}
		if err := w.media.Transcode(ctx, r.sourcePath, optimizedPath, r.probe.Duration, plan, onProgress); err != nil {
			return fmt.Errorf("transcode source video: %w", err)
		}
	}

	r.sourcePath = optimizedPath
	return nil
}

// stageUpload is S5 (progress 10): issue a webhook token when a base
// URL is configured and well-formed, else fall back to polling mode.
func (w *Worker) stageUpload(ctx context.Context, r *run) error {
	if err := w.publish(ctx, r, 10, "Uploading to understanding service"); err != nil {
		return err
	}

	callbackURL := ""
	if w.webhookIssuer != nil && wellFormedBaseURL(w.cfg.WebhookBaseURL) {
		token, err := w.webhookIssuer.IssueToken(ctx, r.jobID)
		if err != nil {
			return fmt.Errorf("issue webhook token: %w", err)
		}
		u, _ := url.Parse(strings.TrimRight(w.cfg.WebhookBaseURL, "/") + "/api/webhooks/memories")
		q := u.Query()
		q.Set("job_id", r.jobID)
		q.Set("token", token)
		u.RawQuery = q.Encode()
		callbackURL = u.String()
		r.webhookMode = true
	}

	result, err := w.understanding.Upload(ctx, r.sourcePath, callbackURL)
	if err != nil {
		return fmt.Errorf("upload to understanding service: %w", err)
	}
	r.videoID = result.VideoID
	return nil
}

func wellFormedBaseURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
