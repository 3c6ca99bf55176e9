package characters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/recapforge/recap/internal/state"
)

// ErrNotFound is returned when no character set is persisted for a series.
var ErrNotFound = errors.New("characters: not found")

const seriesKeyPrefix = "recap:characters:"

func seriesKey(seriesID string) string {
	return seriesKeyPrefix + seriesID
}

// Store persists per-series character rosters with TTL refresh on
// every write (spec §3 Character: "Persisted per series_id with a
// bounded TTL").
type Store struct {
	store *state.Store
	ttl   time.Duration
}

// NewStore builds a Store. ttl <= 0 disables expiration.
func NewStore(s *state.Store, ttl time.Duration) *Store {
	return &Store{store: s, ttl: ttl}
}

// Load returns the persisted roster for seriesID, or ErrNotFound.
func (s *Store) Load(ctx context.Context, seriesID string) (*Set, error) {
	if seriesID == "" {
		return nil, ErrNotFound
	}
	raw, err := s.store.Get(ctx, seriesKey(seriesID))
	if err != nil {
		if errors.Is(err, state.ErrKeyMissing) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load character set: %w", err)
	}
	var set Set
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("decode character set: %w", err)
	}
	return &set, nil
}

// Save writes characters as seriesID's roster, refreshing the TTL.
func (s *Store) Save(ctx context.Context, seriesID string, characters []Character) error {
	if seriesID == "" {
		return nil
	}
	set := Set{SeriesID: seriesID, Characters: characters, UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode character set: %w", err)
	}
	if err := s.store.SetWithTTL(ctx, seriesKey(seriesID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("save character set: %w", err)
	}
	return nil
}

// MergeAndSave loads the existing roster (if any), merges it against
// visual and ai candidates per the S9 merge rule, and persists the
// result, returning the merged roster.
func (s *Store) MergeAndSave(ctx context.Context, seriesID string, visual, ai []Character) ([]Character, error) {
	var existing []Character
	set, err := s.Load(ctx, seriesID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if set != nil {
		existing = set.Characters
	}

	merged := Merge(existing, visual, ai)

	if err := s.Save(ctx, seriesID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
