package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recapforge/recap/internal/blobstore"
	"github.com/recapforge/recap/internal/characters"
	"github.com/recapforge/recap/internal/clients"
	"github.com/recapforge/recap/internal/config"
	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/media"
	"github.com/recapforge/recap/internal/metrics"
	"github.com/recapforge/recap/internal/narration"
	"github.com/recapforge/recap/internal/pipeline"
	"github.com/recapforge/recap/internal/state"
	"github.com/recapforge/recap/internal/stitch"
	"github.com/recapforge/recap/internal/webhook"
)

// bundle holds every collaborator built from a loaded Config, shared
// between the serve and worker subcommands so both wire the pipeline
// identically.
type bundle struct {
	store      *state.Store
	blob       *blobstore.Store
	jobsMgr    *jobs.Manager
	worker     *pipeline.Worker
	metrics    *metrics.Recorder
	webhookIss *webhook.Issuer
	webhookHdl *webhook.Handler
}

// buildBundle wires every adapter/client/subsystem from cfg into a
// running Worker, following the component list named for the Pipeline
// Worker's Deps.
func buildBundle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bundle, error) {
	store := state.New(state.Config{
		Addr:           cfg.State.Addr,
		Password:       cfg.State.Password,
		DB:             cfg.State.DB,
		MaxCASAttempts: cfg.State.MaxCASAttempts,
		Logger:         logger,
	})

	blob, err := blobstore.New(ctx, blobstore.Config{
		Region:          cfg.Blob.Region,
		Bucket:          cfg.Blob.Bucket,
		Endpoint:        cfg.Blob.Endpoint,
		PublicEndpoint:  cfg.Blob.PublicEndpoint,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
		ForcePathStyle:  cfg.Blob.ForcePathStyle,
		PresignTTL:      cfg.Blob.PresignTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build blob store: %w", err)
	}

	toolchain := media.New(media.Config{
		FFmpegPath:       cfg.Media.FFmpegPath,
		FFprobePath:      cfg.Media.FFprobePath,
		ProgressInterval: cfg.Media.ProgressInterval,
		DefaultTimeout:   cfg.Media.DefaultTimeout,
		MaxTimeout:       cfg.Media.MaxTimeout,
		Logger:           logger,
	})

	understanding := clients.NewHTTPUnderstandingClient(clients.UnderstandingConfig{
		BaseURL:       cfg.Clients.Understanding.BaseURL,
		APIKey:        cfg.Clients.Understanding.APIKey,
		UploadTimeout: cfg.Clients.Understanding.UploadTimeout,
		StatusTimeout: cfg.Clients.Understanding.StatusTimeout,
		ChatTimeout:   cfg.Clients.Understanding.ChatTimeout,
		MaxRetries:    cfg.Clients.Understanding.MaxRetries,
	})

	llm := clients.NewOpenRouterClient(clients.OpenRouterConfig{
		BaseURL:      cfg.Clients.LLM.BaseURL,
		APIKey:       cfg.Clients.LLM.APIKey,
		DefaultModel: cfg.Clients.LLM.DefaultModel,
		RPS:          cfg.Clients.LLM.RPS,
		MaxRetries:   cfg.Clients.LLM.MaxRetries,
	})

	tts := clients.NewTTSClient(cfg.Clients.TTS.Provider,
		clients.ElevenLabsConfig{
			APIKey:     cfg.Clients.TTS.APIKey,
			Voice:      cfg.Clients.TTS.Voice,
			Model:      cfg.Clients.TTS.Model,
			Timeout:    cfg.Clients.TTS.Timeout,
			MaxRetries: cfg.Clients.TTS.MaxRetries,
		},
		clients.OpenAITTSConfig{
			APIKey:     cfg.Clients.TTS.APIKey,
			Model:      cfg.Clients.TTS.Model,
			Voice:      cfg.Clients.TTS.Voice,
			Timeout:    cfg.Clients.TTS.Timeout,
			MaxRetries: cfg.Clients.TTS.MaxRetries,
		},
	)

	var vectorStore clients.VectorStoreClient
	if cfg.Clients.VectorStore.Enabled {
		vectorStore = clients.NewHTTPVectorStoreClient(clients.VectorStoreConfig{
			BaseURL: cfg.Clients.VectorStore.BaseURL,
			APIKey:  cfg.Clients.VectorStore.APIKey,
		})
	}

	jobsMgr := jobs.NewManager(store, logger)
	narrator := narration.NewGenerator(llm)
	characterStore := characters.NewStore(store, cfg.Pipeline.SeriesCharacterTTL)
	stitcher := stitch.New(toolchain)

	var webhookIss *webhook.Issuer
	var webhookHdl *webhook.Handler
	if cfg.Webhook.BaseURL != "" {
		webhookIss = webhook.NewIssuer(store, cfg.Webhook.TokenTTL)
		webhookHdl = webhook.NewHandler(webhook.Config{
			Issuer:     webhookIss,
			Store:      store,
			SigningKey: cfg.Webhook.SigningKey,
			StatusTTL:  cfg.Webhook.TokenTTL,
			Logger:     logger,
		})
	}

	rec := metrics.NewRecorder()

	worker := pipeline.New(pipeline.Deps{
		Jobs:          jobsMgr,
		State:         store,
		Blob:          blob,
		Media:         toolchain,
		Understanding: understanding,
		LLM:           llm,
		TTS:           tts,
		VectorStore:   vectorStore,
		Narrator:      narrator,
		Characters:    characterStore,
		Stitcher:      stitcher,
		WebhookIssuer: webhookIss,
		Metrics:       rec,
		Logger:        logger,
	}, pipeline.Config{
		WorkDir:                 cfg.Pipeline.WorkDir,
		PollInterval:            cfg.Pipeline.PollInterval,
		WebhookBaseURL:          cfg.Webhook.BaseURL,
		TTSVoice:                cfg.Clients.TTS.Voice,
		WaitTimeout:             cfg.Clients.Understanding.WaitTimeout,
		StitchTimeout:           cfg.Pipeline.StitchTimeout,
		CharacterTTL:            cfg.Pipeline.SeriesCharacterTTL,
		ClipMatchBaseConfidence: cfg.Pipeline.ClipMatchBaseConfidence,
		ClipMatchFullVideoBonus: cfg.Pipeline.ClipMatchFullVideoBonus,
	})

	return &bundle{
		store:      store,
		blob:       blob,
		jobsMgr:    jobsMgr,
		worker:     worker,
		metrics:    rec,
		webhookIss: webhookIss,
		webhookHdl: webhookHdl,
	}, nil
}

func (b *bundle) Close() {
	if b.store != nil {
		_ = b.store.Close()
	}
}
