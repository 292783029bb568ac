package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaypoint/mailadmin/internal/storage"
)

// ErrStoreUnavailable means the backing store could not be reached. Callers
// must fail closed on it: treat the attempt as denied, never as allowed.
var ErrStoreUnavailable = errors.New("counter store unavailable")

type Result struct {
	Allowed    bool
	CountAfter int
}

// Store holds the durable counters. TryIncrement is the only operation that
// needs synchronization: the check against the bound and the persisted
// increment must be a single indivisible step per key, so that concurrent
// callers on the last free slot resolve to exactly one success. A denied
// attempt never changes stored state.
type Store interface {
	TryIncrement(ctx context.Context, key Key, bound int, now time.Time) (Result, error)

	// Reset unconditionally zeroes the counter for the current window.
	// Operator remediation; races with in-flight increments are last-write-wins.
	Reset(ctx context.Context, key Key, now time.Time) error

	// Peek returns the effective count; a stale window reads as zero.
	Peek(ctx context.Context, key Key, now time.Time) (int, error)
}

func NewStore(backend string, pg *storage.Postgres, redis *storage.RedisClient) (Store, error) {
	switch backend {
	case "postgres", "":
		if pg == nil {
			return nil, errors.New("postgres counter store requires a database connection")
		}
		return NewPostgresStore(pg), nil
	case "redis":
		if redis == nil {
			return nil, errors.New("redis counter store requires a redis connection")
		}
		return NewRedisStore(redis), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown counter store backend: %s", backend)
	}
}
