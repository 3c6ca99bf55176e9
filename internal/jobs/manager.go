package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/recapforge/recap/internal/state"
)

const (
	priorityQueueKey = "recap:queue:priority"
	defaultQueueKey  = "recap:queue:default"
	jobKeyPrefix     = "recap:job:"
	jobUpdatesTopic  = "job_updates:"
)

func jobKey(id string) string { return jobKeyPrefix + id }

// Manager is the Job Manager (spec §4.2): owns job lifecycle, queue
// dispatch, atomic updates, and pub/sub fan-out.
type Manager struct {
	store  *state.Store
	logger *slog.Logger
}

// NewManager builds a Manager over store.
func NewManager(store *state.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// CreateJob allocates a fresh id, writes the initial record, and
// pushes it onto the priority or default queue per the submission's
// priority flag.
func (m *Manager) CreateJob(ctx context.Context, sub Submission) (string, error) {
	id := uuid.NewString()
	record := newRecord(id, sub)

	raw, err := marshalRecord(record)
	if err != nil {
		return "", fmt.Errorf("marshal new job record: %w", err)
	}
	if err := m.store.SetWithTTL(ctx, jobKey(id), raw, 0); err != nil {
		return "", fmt.Errorf("write job record: %w", err)
	}

	queueKey := defaultQueueKey
	if sub.Priority {
		queueKey = priorityQueueKey
	}
	if err := m.store.LPush(ctx, queueKey, id); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	m.logger.Info("job created", "id", id, "priority", sub.Priority)
	return id, nil
}

// GetNextJob pops the priority queue first, then the default queue.
// Returns ("", nil) if both are empty.
func (m *Manager) GetNextJob(ctx context.Context) (string, error) {
	id, err := m.store.RPop(ctx, priorityQueueKey)
	if err != nil {
		return "", fmt.Errorf("pop priority queue: %w", err)
	}
	if id != "" {
		return id, nil
	}
	id, err = m.store.RPop(ctx, defaultQueueKey)
	if err != nil {
		return "", fmt.Errorf("pop default queue: %w", err)
	}
	return id, nil
}

// GetJob returns a job record by id.
func (m *Manager) GetJob(ctx context.Context, id string) (*Record, error) {
	raw, err := m.store.Get(ctx, jobKey(id))
	if err != nil {
		if errors.Is(err, state.ErrKeyMissing) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return unmarshalRecord(raw)
}

// Patch is a typed update struct with all fields optional (spec §9
// "Dynamic update patches": "a typed update struct with all fields
// optional; the transform function compares field-by-field"). A nil
// pointer/empty-slice field means "leave unchanged".
type Patch struct {
	Status          *Status
	Progress        *int
	CurrentStep     *string
	TotalScenes     *int
	ProcessedScenes *int
	ErrorMessage    *string
	OutputURL       *string
	Scenes          []Scene
	HasScript       *bool
	TargetDurationMinutes *float64
	CancelRequested *bool
}

// UpdateJob applies non-null fields of patch via the atomic-key-update
// primitive. Guardrail: if the record is terminal, the update is
// skipped (spec §4.2, §4.5).
func (m *Manager) UpdateJob(ctx context.Context, id string, patch Patch) (bool, error) {
	key := jobKey(id)
	transform := func(current string, exists bool) (string, bool, error) {
		record, err := unmarshalRecord(current)
		if err != nil {
			return "", false, fmt.Errorf("decode job record: %w", err)
		}
		if record.Status.IsTerminal() {
			return "", false, nil
		}

		changed := applyPatch(record, patch)
		if !changed {
			return "", false, nil
		}
		record.UpdatedAt = time.Now().UTC()
		next, err := marshalRecord(record)
		if err != nil {
			return "", false, err
		}
		return next, true, nil
	}

	committed, err := m.store.AtomicUpdate(ctx, key, transform, jobUpdatesTopic+id, publishAfterTransform)
	if err != nil {
		return false, fmt.Errorf("update job %s: %w", id, err)
	}
	return committed, nil
}

// applyPatch copies non-nil patch fields onto record and reports
// whether anything actually changed value (spec §4.2: "Only fields
// whose value changes trigger a publish").
func applyPatch(record *Record, patch Patch) bool {
	changed := false

	setStatus := func(v Status) {
		if record.Status != v {
			record.Status = v
			changed = true
		}
	}
	setInt := func(dst *int, v int) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setString := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setBool := func(dst *bool, v bool) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setFloat := func(dst *float64, v float64) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}

	if patch.Status != nil {
		setStatus(*patch.Status)
	}
	if patch.Progress != nil {
		setInt(&record.Progress, *patch.Progress)
	}
	if patch.CurrentStep != nil {
		setString(&record.CurrentStep, *patch.CurrentStep)
	}
	if patch.TotalScenes != nil {
		setInt(&record.TotalScenes, *patch.TotalScenes)
	}
	if patch.ProcessedScenes != nil {
		setInt(&record.ProcessedScenes, *patch.ProcessedScenes)
	}
	if patch.ErrorMessage != nil {
		setString(&record.ErrorMessage, *patch.ErrorMessage)
	}
	if patch.OutputURL != nil {
		setString(&record.OutputURL, *patch.OutputURL)
	}
	if patch.Scenes != nil {
		record.Scenes = patch.Scenes
		changed = true
	}
	if patch.HasScript != nil {
		setBool(&record.HasScript, *patch.HasScript)
	}
	if patch.TargetDurationMinutes != nil {
		setFloat(&record.TargetDurationMinutes, *patch.TargetDurationMinutes)
	}
	if patch.CancelRequested != nil {
		setBool(&record.CancelRequested, *patch.CancelRequested)
	}

	return changed
}

// FailJobIfNotCompleted sets status=failed only if the current status
// is not completed (spec §4.2, the terminal race protection of P1/SC2).
func (m *Manager) FailJobIfNotCompleted(ctx context.Context, id, message, step string) (bool, error) {
	key := jobKey(id)
	transform := func(current string, exists bool) (string, bool, error) {
		record, err := unmarshalRecord(current)
		if err != nil {
			return "", false, fmt.Errorf("decode job record: %w", err)
		}
		if record.Status == StatusCompleted {
			return "", false, nil
		}
		if record.Status == StatusFailed && record.ErrorMessage == message {
			return "", false, nil
		}
		record.Status = StatusFailed
		record.ErrorMessage = message
		record.CurrentStep = step
		record.UpdatedAt = time.Now().UTC()
		next, err := marshalRecord(record)
		if err != nil {
			return "", false, err
		}
		return next, true, nil
	}
	committed, err := m.store.AtomicUpdate(ctx, key, transform, jobUpdatesTopic+id, publishAfterTransform)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}
	return committed, nil
}

// CompleteJobIfNotFailed sets status=completed only if the current
// status is not failed.
func (m *Manager) CompleteJobIfNotFailed(ctx context.Context, id, outputURL string, scenes []Scene, progress int, step string, processedScenes int) (bool, error) {
	key := jobKey(id)
	transform := func(current string, exists bool) (string, bool, error) {
		record, err := unmarshalRecord(current)
		if err != nil {
			return "", false, fmt.Errorf("decode job record: %w", err)
		}
		if record.Status == StatusFailed {
			return "", false, nil
		}
		record.Status = StatusCompleted
		record.OutputURL = outputURL
		record.Scenes = scenes
		record.Progress = progress
		record.CurrentStep = step
		record.ProcessedScenes = processedScenes
		record.UpdatedAt = time.Now().UTC()
		next, err := marshalRecord(record)
		if err != nil {
			return "", false, err
		}
		return next, true, nil
	}
	committed, err := m.store.AtomicUpdate(ctx, key, transform, jobUpdatesTopic+id, publishAfterTransform)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}
	return committed, nil
}

// ListFilter narrows ListJobs.
type ListFilter struct {
	Status *Status
	UserID string
	Limit  int
	Offset int
}

// ListJobs scans the given ids, applies in-memory status/user filters,
// and sorts by created_at desc (spec §4.2: "scan with in-memory
// filter"). The scan is over a caller-supplied id set since the store
// adapter exposes no native secondary index; the index itself (e.g. a
// per-user id set) is the caller's responsibility.
func (m *Manager) ListJobs(ctx context.Context, ids []string, filter ListFilter) ([]*Record, error) {
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		record, err := m.GetJob(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		if filter.Status != nil && record.Status != *filter.Status {
			continue
		}
		if filter.UserID != "" && record.UserID != filter.UserID {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	limit := filter.Limit
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []*Record{}, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// CleanupOldJobs removes terminal jobs older than maxAge among the
// given candidate ids.
func (m *Manager) CleanupOldJobs(ctx context.Context, ids []string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		record, err := m.GetJob(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return removed, err
		}
		if !record.Status.IsTerminal() {
			continue
		}
		if record.UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, jobKey(id)); err != nil {
			return removed, fmt.Errorf("delete job %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// publishAfterTransform re-derives the small pub/sub payload from the
// record that was just committed (spec §4.2: publish payload contains
// only {id, status, progress, current_step}).
func publishAfterTransform(next string) string {
	record, err := unmarshalRecord(next)
	if err != nil {
		return next
	}
	return publishPayload(record)
}
