package jobs

import (
	"context"
	"testing"
	"time"
)

func TestSweep_RemovesOldTerminalJobs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/a.mp4"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(id))

	if _, err := m.CompleteJobIfNotFailed(ctx, id, "https://cdn/out.mp4", nil, 100, "Completed", 0); err != nil {
		t.Fatalf("CompleteJobIfNotFailed: %v", err)
	}

	sweepCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()

	idSource := func(context.Context) ([]string, error) { return []string{id}, nil }
	m.Sweep(sweepCtx, 20*time.Millisecond, 0, idSource)

	if _, err := m.GetJob(ctx, id); err != ErrNotFound {
		t.Fatalf("expected job removed after sweep, got err=%v", err)
	}
}
