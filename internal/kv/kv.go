// Package kv defines the key-value persistence port used by the record store
// and the rate limiter, together with a SQLite-backed and an in-memory
// implementation. Keys are namespaced by purpose by the callers
// (cells/..., rate-limits/..., leases/...).
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("key not found")

// Metadata carries optional caching hints stored alongside a value.
type Metadata struct {
	ContentType  string
	CacheControl string
	LastUpdated  int64
}

// Store is the minimal persistence contract. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, meta *Metadata) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Incrementer is an optional capability: an atomic server-side counter with
// lazy expiry. Increment bumps the counter under key and returns the new
// value; a counter whose expiry has passed restarts from 1 and adopts the
// new expiry. Backends without atomic increment simply do not implement
// this, and callers fall back to read-modify-write.
type Incrementer interface {
	Increment(ctx context.Context, key string, expiresAt time.Time) (int64, error)
}

// Locker is an optional capability: a conditional put usable as an advisory
// lease. PutIfAbsent stores the value only when the key is absent or its
// previous lease has expired, and reports whether the write won.
type Locker interface {
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
