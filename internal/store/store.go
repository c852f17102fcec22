// Package store abstracts the shared key/value store backing the distributed
// scrape lock and the cross-instance auction cache.
package store

import (
	"context"
	"time"
)

// Key namespaces. Locks and cached data live in disjoint namespaces so a
// lock and its protected data can never collide.
const (
	LockPrefix  = "scrape-lock:"
	CachePrefix = "auction:"
)

// LockKey builds the distributed lock key for a room.
func LockKey(roomID string) string { return LockPrefix + roomID }

// CacheKey builds the shared cache key for a room.
func CacheKey(roomID string) string { return CachePrefix + roomID }

// SharedStore is the minimal atomic surface the coordinator and cache need.
// Implementations provide their own concurrency control; callers never lock
// around these operations.
type SharedStore interface {
	// SetIfAbsent atomically creates key only when it does not exist,
	// reporting whether this call won. The TTL is a safety net so a crashed
	// holder cannot wedge a key forever.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Exists is a read-only presence probe.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// GetJSON unmarshals the value at key into v, reporting whether the key
	// was present.
	GetJSON(ctx context.Context, key string, v any) (bool, error)

	// SetJSON marshals v and writes it at key, overwriting any prior value.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error

	// Keys lists the live keys sharing a prefix. Needed by the periodic
	// cache sweep.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
