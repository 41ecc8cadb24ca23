// Package store provides key-value storage backends for the quota service.
package store

import "context"

// Store defines the key-value operations the quota service needs: hash
// field upserts and point reads, set membership, and atomic integer
// counters. Implementations must be safe for concurrent use.
//
// No multi-key atomicity is offered. The only atomic compound operation
// is IncrBelow, which gates a single counter against a ceiling.
type Store interface {
	// HashSet upserts a field within the named hash.
	HashSet(ctx context.Context, key, field, value string) error

	// HashGet reads a field from the named hash. The second return is
	// false when the hash or field does not exist.
	HashGet(ctx context.Context, key, field string) (string, bool, error)

	// SetAdd adds a member to the named set. Adding an existing member
	// is a no-op.
	SetAdd(ctx context.Context, key, member string) error

	// SetPick returns an arbitrary member of the named set, or false if
	// the set is empty. Selection is non-deterministic: callers must not
	// assume any ordering across calls or across backends.
	SetPick(ctx context.Context, key string) (string, bool, error)

	// Incr atomically increments the named counter and returns the new
	// value. A missing counter starts at 0, so the first increment
	// yields 1.
	Incr(ctx context.Context, key string) (int64, error)

	// IncrBelow atomically increments the named counter only when its
	// current value is below ceiling. Returns the counter value after
	// the operation and whether the increment was applied.
	IncrBelow(ctx context.Context, key string, ceiling int64) (count int64, allowed bool, err error)

	// GetInt reads the named integer value. The second return is false
	// when the key does not exist.
	GetInt(ctx context.Context, key string) (int64, bool, error)

	// SetInt writes the named integer value, overwriting any previous one.
	SetInt(ctx context.Context, key string, value int64) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
