package jobs

import (
	"context"
	"time"
)

// IDSource supplies the set of job ids a retention sweep should scan.
// The store adapter exposes no native secondary index (see ListJobs),
// so discovery is entirely the caller's responsibility: a per-user id
// set, a created_at-sorted index, or a full key scan for a small
// deployment are all valid sources.
type IDSource func(ctx context.Context) ([]string, error)

// Sweep runs CleanupOldJobs on a fixed interval until ctx is
// cancelled. spec.md names cleanup_old_jobs without specifying what
// triggers it; this is that trigger, run by `cmd/recap sweep --watch`.
// `cmd/recap serve` does not start it.
func (m *Manager) Sweep(ctx context.Context, interval, maxAge time.Duration, ids IDSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			candidates, err := ids(ctx)
			if err != nil {
				m.logger.Error("retention sweep: id source failed", "error", err)
				continue
			}
			removed, err := m.CleanupOldJobs(ctx, candidates, maxAge)
			if err != nil {
				m.logger.Error("retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				m.logger.Info("retention sweep removed jobs", "count", removed)
			}
		}
	}
}
