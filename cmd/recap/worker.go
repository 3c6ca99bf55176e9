package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the pipeline worker loop, without the HTTP server",
	Long: `Run recap's pipeline worker loop without binding an HTTP port.

Use this to scale worker capacity independently of the status/webhook
server: run one "recap serve" for the HTTP surface and any number of
"recap worker" processes against the same state store, all popping
from the same job queues.`,
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

		return b.worker.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
