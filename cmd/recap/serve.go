package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recapforge/recap/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline worker and the status/webhook HTTP server together",
	Long: `Start recap's HTTP server and a pipeline worker loop in the same
process.

The server provides:
  - GET  /healthz               - basic liveness check
  - GET  /jobs/{id}              - job status query
  - GET  /metrics                - in-memory pipeline metrics snapshot
  - POST /api/webhooks/memories  - inbound understanding-service callback

The worker loop pops queued jobs and drives them through the full
pipeline until the process receives a shutdown signal. Run the sweep
subcommand alongside this to reclaim terminal jobs past their max age.

Examples:
  recap serve                    # start on default port 8080
  recap serve --port 3000        # start on a custom port
  recap serve --host 0.0.0.0     # bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cfgMgr, err := loadConfig(logger)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		b, err := buildBundle(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("wire pipeline: %w", err)
		}
		defer b.Close()

		srv := server.New(server.Config{
			Host:           serveHost,
			Port:           servePort,
			Jobs:           b.jobsMgr,
			Metrics:        b.metrics,
			WebhookHandler: b.webhookHdl,
			Logger:         logger,
		})

		errCh := make(chan error, 2)
		go func() { errCh <- b.worker.Run(ctx) }()
		go func() { errCh <- srv.Start(ctx) }()

		<-ctx.Done()
		if err := <-errCh; err != nil {
			logger.Error("component stopped with error", "error", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "port to listen on")
	rootCmd.AddCommand(serveCmd)
}
