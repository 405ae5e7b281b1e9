// Package service implements the request mediator: the layer that applies
// tier policy to an authenticated request before delegating to the record
// store, and shapes the results for the HTTP boundary.
//
// All policy decisions (TTL clamping, payload ceilings, update validation)
// happen here; the store below trusts its inputs and the handlers above
// only translate outcomes to wire shapes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stashkv/stash/internal/auth"
	"github.com/stashkv/stash/internal/storage"
)

// Policy violation categories. Stable, machine-readable values surfaced in
// error responses.
const (
	// CategoryPayloadTooLarge marks a payload exceeding the tier ceiling.
	CategoryPayloadTooLarge = "payload_too_large"

	// CategoryInvalidTTL marks a TTL or extension outside acceptable bounds.
	CategoryInvalidTTL = "invalid_ttl"

	// CategoryInvalidUpdate marks an update carrying neither new data nor a
	// TTL extension.
	CategoryInvalidUpdate = "invalid_update"
)

// PolicyError is a tier-policy or validation violation. It carries a stable
// category for machines and a detail string for humans; Limit is the
// exceeded ceiling when one applies, 0 otherwise.
type PolicyError struct {
	Category string
	Detail   string
	Limit    int64
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Category, e.Detail)
}

// StashResult reports a successful create. TTL is the clamped value that
// was actually stored, never the requested one, so ExpiresAt computed from
// it matches the record's real expiry.
type StashResult struct {
	MemoryID  string
	TTL       time.Duration
	ExpiresAt time.Time
}

// Service mediates between authenticated requests and the record store.
type Service struct {
	store  storage.RecordStore
	logger *slog.Logger
}

// New creates a Service backed by the given record store.
func New(store storage.RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Stash stores data for the principal. A zero requested TTL applies the
// tier default; a TTL above the tier maximum is clamped down, never
// rejected and never raised.
func (s *Service) Stash(ctx context.Context, p *auth.Principal, data json.RawMessage, requested time.Duration) (*StashResult, error) {
	limits := p.Tier.Limits()

	ttl := requested
	if ttl == 0 {
		ttl = limits.DefaultTTL
	}
	if ttl < time.Second {
		return nil, &PolicyError{
			Category: CategoryInvalidTTL,
			Detail:   "ttl must be at least 1 second",
		}
	}
	if ttl > limits.MaxTTL {
		ttl = limits.MaxTTL
	}

	if int64(len(data)) > limits.MaxPayloadBytes {
		return nil, &PolicyError{
			Category: CategoryPayloadTooLarge,
			Detail:   fmt.Sprintf("payload (%d bytes) exceeds the %s tier limit (%d bytes)", len(data), p.Tier, limits.MaxPayloadBytes),
			Limit:    limits.MaxPayloadBytes,
		}
	}

	memoryID, err := s.store.Create(ctx, p.UserID, data, ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("memory stashed",
		"user_id", p.UserID, "memory_id", memoryID, "ttl_seconds", int64(ttl.Seconds()))

	return &StashResult{
		MemoryID:  memoryID,
		TTL:       ttl,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

// Recall returns the principal's record. The user ID always comes from the
// principal, never from the request, so absent, expired, and foreign
// records are all reported as the same storage.ErrNotFound.
func (s *Service) Recall(ctx context.Context, p *auth.Principal, memoryID string) (*storage.Record, error) {
	if memoryID == "" {
		return nil, storage.ErrNotFound
	}
	return s.store.Get(ctx, p.UserID, memoryID)
}

// Update replaces the record's data and/or extends its TTL. At least one of
// the two must be supplied. When the additive extension pushes the
// remaining TTL past the tier maximum, the corrected expiry is pushed back
// into the store before the clamped value is reported.
func (s *Service) Update(ctx context.Context, p *auth.Principal, memoryID string, data json.RawMessage, extra time.Duration) (*storage.Record, error) {
	if data == nil && extra <= 0 {
		return nil, &PolicyError{
			Category: CategoryInvalidUpdate,
			Detail:   "update requires data, extra_time, or both",
		}
	}
	if extra < 0 {
		return nil, &PolicyError{
			Category: CategoryInvalidTTL,
			Detail:   "extra_time must be positive",
		}
	}
	if memoryID == "" {
		return nil, storage.ErrNotFound
	}

	rec, err := s.store.Update(ctx, p.UserID, memoryID, data, extra)
	if err != nil {
		return nil, err
	}

	limits := p.Tier.Limits()
	if rec.TTLRemaining > limits.MaxTTL {
		// Correction write: clamp the stored expiry back to the tier
		// ceiling. A record expiring between the two operations surfaces as
		// NotFound, which is the truthful outcome.
		if err := s.store.Expire(ctx, p.UserID, memoryID, limits.MaxTTL); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, storage.ErrNotFound
			}
			return nil, err
		}
		rec.TTLRemaining = limits.MaxTTL
	}

	s.logger.Debug("memory updated",
		"user_id", p.UserID, "memory_id", memoryID,
		"ttl_seconds", int64(rec.TTLRemaining.Seconds()))

	return rec, nil
}

// Forget deletes the record immediately and reports whether it existed.
func (s *Service) Forget(ctx context.Context, p *auth.Principal, memoryID string) (bool, error) {
	if memoryID == "" {
		return false, nil
	}

	existed, err := s.store.Delete(ctx, p.UserID, memoryID)
	if err != nil {
		return false, err
	}
	if existed {
		s.logger.Debug("memory deleted", "user_id", p.UserID, "memory_id", memoryID)
	}
	return existed, nil
}
