// Package api provides the HTTP handlers, middleware, and wire types for
// the Stash REST API.
package api

import (
	"encoding/json"
	"time"
)

// Error codes surfaced in ErrorResponse.Code. Stable values; clients match
// on these, not on the human-readable text.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeNotFound         = "NOT_FOUND"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeValidation       = "VALIDATION"
	CodeRateLimited      = "RATE_LIMITED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// ErrorResponse is the standard error response format for the API.
// Limit is set only on payload-size violations and reports the ceiling
// that was exceeded, in bytes.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Limit int64  `json:"limit,omitempty"`
}

// StashRequest is the request body for POST /stash.
type StashRequest struct {
	// Data is any JSON value to store.
	Data json.RawMessage `json:"data"`

	// TTL is the requested time-to-live in seconds (1..86400). Omitted
	// applies the tier default.
	TTL *int64 `json:"ttl,omitempty"`
}

// StashResponse reports a successful stash. TTL is the stored (possibly
// clamped) value, so expires_at computed from it matches the record.
type StashResponse struct {
	MemoryID  string    `json:"memory_id"`
	TTL       int64     `json:"ttl"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RecallResponse is the response for GET /recall/{memory_id}.
type RecallResponse struct {
	MemoryID     string          `json:"memory_id"`
	Data         json.RawMessage `json:"data"`
	TTLRemaining int64           `json:"ttl_remaining"`
}

// UpdateRequest is the request body for PATCH /update/{memory_id}.
// At least one of the two fields must be present.
type UpdateRequest struct {
	// Data, when present, replaces the stored value wholesale.
	Data json.RawMessage `json:"data,omitempty"`

	// ExtraTime, when present, adds seconds (1..86400) to the remaining TTL.
	ExtraTime *int64 `json:"extra_time,omitempty"`
}

// UpdateResponse is the response for PATCH /update/{memory_id}.
type UpdateResponse struct {
	MemoryID     string          `json:"memory_id"`
	Data         json.RawMessage `json:"data"`
	TTLRemaining int64           `json:"ttl_remaining"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// HealthResponse is the response for GET /health. Backend fields report
// "connected" or "disconnected".
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Mode      string `json:"mode"`
	Redis     string `json:"redis"`
	Directory string `json:"directory"`
}

// RootResponse is the response for GET /.
type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Mode    string `json:"mode"`
}
