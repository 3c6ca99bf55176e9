// Package state wraps Redis as the single-source-of-truth state store
// adapter (spec §4.1): key/value with TTL, list push/pop queues,
// pub/sub, and an atomic WATCH/MULTI/EXEC update primitive.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyMissing is returned (wrapped) by Get when the key does not
// exist. AtomicUpdate reports a missing key as (false, nil).
var ErrKeyMissing = errors.New("state: key missing")

// ErrNoChange marks, inside AtomicUpdate, a transform that reported no
// change; AtomicUpdate reports it to its caller as (false, nil).
var ErrNoChange = errors.New("state: no change")

// ErrConflictExhausted is returned when the CAS retry budget is spent.
var ErrConflictExhausted = errors.New("state: conflict exhausted")

// Store is the State Store Adapter.
type Store struct {
	rdb            *redis.Client
	logger         *slog.Logger
	maxCASAttempts int
}

// Config configures a new Store.
type Config struct {
	Addr           string
	Password       string
	DB             int
	MaxCASAttempts int // default 10, per spec §4.1
	Logger         *slog.Logger
}

// New creates a Store backed by a Redis client.
func New(cfg Config) *Store {
	if cfg.MaxCASAttempts <= 0 {
		cfg.MaxCASAttempts = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger:         logger,
		maxCASAttempts: cfg.MaxCASAttempts,
	}
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the raw string value stored at key. Returns ErrKeyMissing
// (wrapped) if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrKeyMissing, key)
		}
		return "", err
	}
	return v, nil
}

// SetWithTTL writes value at key with an expiration. ttl <= 0 means no
// expiration.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// LPush pushes value onto the left of the list at key (used for job
// queues: new jobs are pushed left, dequeued from the right so FIFO
// order is preserved).
func (s *Store) LPush(ctx context.Context, key, value string) error {
	return s.rdb.LPush(ctx, key, value).Err()
}

// RPop pops a value from the right of the list at key. Returns
// ("", nil) if the list is empty (non-blocking, per spec §4.2
// get_next_job being "non-blocking").
func (s *Store) RPop(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.RPop(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// LLen returns the length of the list at key.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

// Publish publishes payload on channel.
func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

// Subscription wraps a Redis pub/sub subscription.
type Subscription struct {
	ps *redis.PubSub
}

// Subscribe subscribes to one or more channels. Callers must Close the
// returned Subscription when done.
func (s *Store) Subscribe(ctx context.Context, channels ...string) *Subscription {
	return &Subscription{ps: s.rdb.Subscribe(ctx, channels...)}
}

// Channel returns the delivery channel for received messages.
func (sub *Subscription) Channel() <-chan *redis.Message {
	return sub.ps.Channel()
}

// Close unsubscribes and releases the subscription.
func (sub *Subscription) Close() error {
	return sub.ps.Close()
}

// TransformFunc mutates a copy of the value read under WATCH and
// reports whether anything changed. Implementations must be pure with
// respect to external state: they may be invoked more than once across
// retries.
type TransformFunc func(current string, exists bool) (next string, changed bool, err error)

// AtomicUpdate implements the §4.5 algorithm: WATCH key, read current
// value, apply transform, and commit via MULTI/EXEC with a published
// notification — all inside an optimistic-retry loop bounded by
// maxCASAttempts. publishChannel/makePayload may be empty to skip
// the publish step (e.g. callers that only want a bare CAS write).
func (s *Store) AtomicUpdate(ctx context.Context, key string, transform TransformFunc, publishChannel string, makePayload func(next string) string) (bool, error) {
	for attempt := 1; attempt <= s.maxCASAttempts; attempt++ {
		var committed bool
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Result()
			exists := true
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					return err
				}
				exists = false
				current = ""
			}
			if !exists {
				return ErrKeyMissing
			}

			next, changed, terr := transform(current, exists)
			if terr != nil {
				return terr
			}
			if !changed {
				return ErrNoChange
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, redis.KeepTTL)
				if publishChannel != "" && makePayload != nil {
					pipe.Publish(ctx, publishChannel, makePayload(next))
				}
				return nil
			})
			if err != nil {
				return err
			}
			committed = true
			return nil
		}, key)

		switch {
		case err == nil && committed:
			return true, nil
		case errors.Is(err, ErrKeyMissing):
			return false, nil
		case errors.Is(err, ErrNoChange):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			// Optimistic conflict: another writer changed the key between
			// WATCH and EXEC. Retry.
			s.logger.Debug("atomic update conflict, retrying", "key", key, "attempt", attempt)
			continue
		case err != nil:
			return false, err
		}
	}
	return false, fmt.Errorf("%w: key %s after %d attempts", ErrConflictExhausted, key, s.maxCASAttempts)
}
