package storage

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the record was never created, was deleted,
	// or has expired. Callers cannot distinguish the three cases.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable indicates that the backing store could not be reached.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Record is a stored payload plus its expiry bookkeeping, addressed by the
// (user, memory ID) pair that created it.
type Record struct {
	// MemoryID is the opaque, URL-safe token identifying the record within
	// its owner's namespace.
	MemoryID string

	// Data is the stored JSON payload, returned verbatim.
	Data json.RawMessage

	// CreatedAt is when the record was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the record was last modified, nil if never updated.
	UpdatedAt *time.Time

	// TTLRemaining is the time left before the record expires. Always
	// positive: a record at or past expiry is reported as ErrNotFound.
	TTLRemaining time.Duration
}
