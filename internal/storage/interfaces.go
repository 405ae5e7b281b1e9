// Package storage defines the record store contract for the Stash system.
//
// The store holds auto-expiring records in per-user namespaces. Every
// operation takes the owning user ID explicitly; implementations must make
// it impossible for one user's operation to observe or mutate another
// user's record, even when memory IDs collide across users.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// RecordStore provides atomic lifecycle operations for namespaced,
// auto-expiring records.
//
// The expiry instant is the sole source of truth for existence: once it
// passes, every method behaves as if the record never existed. There is no
// separate deletion flag and no active sweeper in this layer.
type RecordStore interface {
	// Create generates a fresh memory ID and stores data under it with the
	// given TTL as a single atomic set-with-expiry. There is no window where
	// the record exists without its expiry attached.
	Create(ctx context.Context, userID string, data json.RawMessage, ttl time.Duration) (string, error)

	// Get returns the record and its remaining TTL.
	// Returns ErrNotFound if the record is absent or expired; TTLRemaining
	// in a returned record is always positive.
	Get(ctx context.Context, userID, memoryID string) (*Record, error)

	// Update replaces the stored data (when data is non-nil) and/or extends
	// the expiry by extra (when positive, added to the remaining TTL). The
	// data and expiry changes are written together in one atomic set; no
	// reader observes new data with the old expiry or vice versa. Either
	// argument may be zero-valued independently.
	// Returns ErrNotFound if the record is absent or expired.
	Update(ctx context.Context, userID, memoryID string, data json.RawMessage, extra time.Duration) (*Record, error)

	// Expire resets the record's remaining TTL to exactly ttl. Used by the
	// policy layer to push a clamped expiry back after an update.
	// Returns ErrNotFound if the record is absent or expired.
	Expire(ctx context.Context, userID, memoryID string, ttl time.Duration) error

	// Delete removes the record immediately regardless of TTL and reports
	// whether it existed. Idempotent: deleting an absent record returns
	// false with no error.
	Delete(ctx context.Context, userID, memoryID string) (bool, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
