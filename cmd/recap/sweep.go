package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/state"
)

var (
	sweepIDsFile string
	sweepWatch   bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove terminal jobs past their retention window",
	Long: `Run the retention sweep (cleanup_old_jobs) over a caller-supplied
list of candidate job ids.

The state store exposes no native secondary index over job ids, so
sweep takes its candidate list externally: one id per line, from
--ids-file or stdin if the flag is omitted. Whatever system tracks
job ids (a submission ledger, a separate index, a scheduled export)
is expected to supply this list.

Examples:
  recap sweep --ids-file ids.txt           # sweep once
  cut -d, -f1 ids.csv | recap sweep         # sweep once, ids from stdin
  recap sweep --ids-file ids.txt --watch    # sweep on pipeline.retention_sweep_every`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cfgMgr, err := loadConfig(logger)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		store := state.New(state.Config{
			Addr:           cfg.State.Addr,
			Password:       cfg.State.Password,
			DB:             cfg.State.DB,
			MaxCASAttempts: cfg.State.MaxCASAttempts,
			Logger:         logger,
		})
		defer store.Close()

		mgr := jobs.NewManager(store, logger)
		maxAge := time.Duration(cfg.Pipeline.RetentionMaxAgeHours) * time.Hour
		idSource := func(context.Context) ([]string, error) { return readIDs(sweepIDsFile) }

		if !sweepWatch {
			ids, err := idSource(ctx)
			if err != nil {
				return fmt.Errorf("read candidate ids: %w", err)
			}
			removed, err := mgr.CleanupOldJobs(ctx, ids, maxAge)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			logger.Info("sweep complete", "removed", removed, "candidates", len(ids))
			return nil
		}

		interval := cfg.Pipeline.RetentionSweepEvery
		logger.Info("sweeping on interval", "interval", interval.String())
		mgr.Sweep(ctx, interval, maxAge, idSource)
		return nil
	},
}

// readIDs reads one job id per line from path, or from stdin if path
// is empty. Blank lines are skipped.
func readIDs(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open ids file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ids: %w", err)
	}
	return ids, nil
}

func init() {
	sweepCmd.Flags().StringVar(&sweepIDsFile, "ids-file", "", "file of candidate job ids, one per line (default: stdin)")
	sweepCmd.Flags().BoolVar(&sweepWatch, "watch", false, "keep sweeping on pipeline.retention_sweep_every instead of running once")
	rootCmd.AddCommand(sweepCmd)
}
