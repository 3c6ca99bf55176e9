package jobs

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/recapforge/recap/internal/state"
)

// newTestManager connects to a real Redis instance when RECAP_TEST_REDIS_ADDR
// is set; otherwise the test is skipped, matching internal/state's
// integration-test convention (no in-process Redis fake in the retrieval
// pack).
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	addr := os.Getenv("RECAP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECAP_TEST_REDIS_ADDR not set, skipping Redis-backed test")
	}
	s := state.New(state.Config{Addr: addr, MaxCASAttempts: 10})
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("could not reach redis at %s: %v", addr, err)
	}
	return NewManager(s, nil)
}

func TestCreateJob_EnqueuesOnCorrectQueue(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/a.mp4", Priority: true})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(id))

	record, err := m.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if record.Status != StatusPending {
		t.Fatalf("expected pending, got %s", record.Status)
	}
	if record.CurrentStep != "Queued" {
		t.Fatalf("expected initial step Queued, got %q", record.CurrentStep)
	}

	popped, err := m.GetNextJob(ctx)
	if err != nil {
		t.Fatalf("GetNextJob: %v", err)
	}
	if popped != id {
		t.Fatalf("expected priority job to pop first, got %q", popped)
	}
}

func TestGetNextJob_PriorityBeforeDefault(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	defaultID, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/default.mp4"})
	if err != nil {
		t.Fatalf("CreateJob default: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(defaultID))

	priorityID, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/priority.mp4", Priority: true})
	if err != nil {
		t.Fatalf("CreateJob priority: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(priorityID))

	first, err := m.GetNextJob(ctx)
	if err != nil {
		t.Fatalf("GetNextJob: %v", err)
	}
	if first != priorityID {
		t.Fatalf("expected priority job first, got %q", first)
	}

	second, err := m.GetNextJob(ctx)
	if err != nil {
		t.Fatalf("GetNextJob: %v", err)
	}
	if second != defaultID {
		t.Fatalf("expected default job second, got %q", second)
	}
}

func TestUpdateJob_SkipsTerminalRecord(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/a.mp4"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(id))

	completed, err := m.CompleteJobIfNotFailed(ctx, id, "s3://out.mp4", nil, 100, "Done", 0)
	if err != nil {
		t.Fatalf("CompleteJobIfNotFailed: %v", err)
	}
	if !completed {
		t.Fatal("expected completion to commit")
	}

	step := "Should not apply"
	committed, err := m.UpdateJob(ctx, id, Patch{CurrentStep: &step})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if committed {
		t.Fatal("expected update against a terminal job to be a no-op")
	}

	record, err := m.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if record.CurrentStep == step {
		t.Fatal("terminal guardrail must not let current_step change")
	}
}

func TestFailJobIfNotCompleted_DoesNotOverwriteCompleted(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/a.mp4"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(id))

	if _, err := m.CompleteJobIfNotFailed(ctx, id, "s3://out.mp4", nil, 100, "Done", 0); err != nil {
		t.Fatalf("CompleteJobIfNotFailed: %v", err)
	}

	failed, err := m.FailJobIfNotCompleted(ctx, id, "boom", "Stitching")
	if err != nil {
		t.Fatalf("FailJobIfNotCompleted: %v", err)
	}
	if failed {
		t.Fatal("expected fail-if-not-completed to be a no-op against a completed job")
	}

	record, err := m.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if record.Status != StatusCompleted {
		t.Fatalf("expected status to remain completed, got %s", record.Status)
	}
}

func TestListJobs_FiltersAndSorts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	idA, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/a.mp4", UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateJob a: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(idA))

	idB, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/b.mp4", UserID: "user-2"})
	if err != nil {
		t.Fatalf("CreateJob b: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(idB))

	records, err := m.ListJobs(ctx, []string{idA, idB}, ListFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(records) != 1 || records[0].ID != idA {
		t.Fatalf("expected only user-1's job, got %#v", records)
	}
}

func TestCleanupOldJobs_RemovesOldTerminalOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.CreateJob(ctx, Submission{SourceVideoKey: "videos/a.mp4"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	defer m.store.Delete(ctx, jobKey(id))

	removed, err := m.CleanupOldJobs(ctx, []string{id}, time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldJobs: %v", err)
	}
	if removed != 0 {
		t.Fatal("expected non-terminal job to survive cleanup")
	}

	if _, err := m.CompleteJobIfNotFailed(ctx, id, "s3://out.mp4", nil, 100, "Done", 0); err != nil {
		t.Fatalf("CompleteJobIfNotFailed: %v", err)
	}

	removed, err = m.CleanupOldJobs(ctx, []string{id}, time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldJobs: %v", err)
	}
	if removed != 0 {
		t.Fatal("expected freshly-completed job to survive a 1h cleanup window")
	}

	removed, err = m.CleanupOldJobs(ctx, []string{id}, 0)
	if err != nil {
		t.Fatalf("CleanupOldJobs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected the completed job to be removed with a zero max age, got %d", removed)
	}

	if _, err := m.GetJob(ctx, id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after cleanup, got %v", err)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:         false,
		StatusProcessing:      false,
		StatusGeneratingAudio: false,
		StatusStitching:       false,
		StatusCompleted:       true,
		StatusFailed:          true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestApplyPatch_OnlyReportsActualChanges(t *testing.T) {
	record := &Record{Status: StatusPending, Progress: 0, CurrentStep: "Queued"}

	if changed := applyPatch(record, Patch{}); changed {
		t.Fatal("empty patch must report no change")
	}

	sameStep := "Queued"
	if changed := applyPatch(record, Patch{CurrentStep: &sameStep}); changed {
		t.Fatal("patching with the existing value must report no change")
	}

	newStep := "Downloading"
	if changed := applyPatch(record, Patch{CurrentStep: &newStep}); !changed {
		t.Fatal("patching with a new value must report change")
	}
	if record.CurrentStep != "Downloading" {
		t.Fatalf("expected CurrentStep to be updated, got %q", record.CurrentStep)
	}

	status := StatusProcessing
	progress := 10
	if changed := applyPatch(record, Patch{Status: &status, Progress: &progress}); !changed {
		t.Fatal("expected status+progress patch to report change")
	}
	if record.Status != StatusProcessing || record.Progress != 10 {
		t.Fatalf("expected status/progress applied, got %#v", record)
	}
}

func TestApplyPatch_ScenesAlwaysAppliesWhenNonNil(t *testing.T) {
	record := &Record{Scenes: nil}
	scenes := []Scene{{ID: 1, Title: "Opening"}}
	if changed := applyPatch(record, Patch{Scenes: scenes}); !changed {
		t.Fatal("expected non-nil scenes patch to report change")
	}
	if len(record.Scenes) != 1 || record.Scenes[0].Title != "Opening" {
		t.Fatalf("expected scenes applied, got %#v", record.Scenes)
	}
}

func TestNewRecord_DefaultsToPendingQueued(t *testing.T) {
	record := newRecord("job-1", Submission{SourceVideoKey: "videos/a.mp4"})
	if record.Status != StatusPending {
		t.Fatalf("expected pending, got %s", record.Status)
	}
	if record.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", record.Progress)
	}
	if record.CurrentStep != "Queued" {
		t.Fatalf("expected Queued, got %q", record.CurrentStep)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestMarshalUnmarshalRecord_RoundTrips(t *testing.T) {
	record := newRecord("job-1", Submission{SourceVideoKey: "videos/a.mp4", UserID: "user-1"})
	raw, err := marshalRecord(record)
	if err != nil {
		t.Fatalf("marshalRecord: %v", err)
	}
	got, err := unmarshalRecord(raw)
	if err != nil {
		t.Fatalf("unmarshalRecord: %v", err)
	}
	if got.ID != record.ID || got.UserID != record.UserID {
		t.Fatalf("round trip mismatch: %#v vs %#v", got, record)
	}
}

func TestPublishPayload_OnlyCarriesFourFields(t *testing.T) {
	record := newRecord("job-1", Submission{SourceVideoKey: "videos/a.mp4"})
	record.ErrorMessage = "should not leak into publish payload"

	payload := publishAfterTransform(mustMarshal(t, record))
	if payload == "" {
		t.Fatal("expected non-empty publish payload")
	}
	if strings.Contains(payload, "should not leak") {
		t.Fatal("publish payload must not carry error_message")
	}
}

func mustMarshal(t *testing.T, r *Record) string {
	t.Helper()
	raw, err := marshalRecord(r)
	if err != nil {
		t.Fatalf("marshalRecord: %v", err)
	}
	return raw
}
