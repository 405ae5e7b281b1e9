// Package directory provides the persistent user and API-key directory.
//
// API keys are never stored: only their SHA-256 hash is persisted, and
// lookups are performed by hash. Two engines are available, sqlite for
// local use and postgres for production, selected by configuration.
package directory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates that no user matched the lookup.
	ErrNotFound = errors.New("directory: user not found")

	// ErrUserExists indicates that a user with the given ID already exists.
	ErrUserExists = errors.New("directory: user already exists")

	// ErrUnavailable indicates that the directory backend is unreachable.
	ErrUnavailable = errors.New("directory: unavailable")

	// ErrInvalidUserID indicates a user ID outside the safe character set.
	ErrInvalidUserID = errors.New("directory: invalid user ID")
)

// User is a directory entry: an account plus the hash of its current API key.
type User struct {
	ID           string
	Tier         string
	CreatedAt    time.Time
	KeyCreatedAt time.Time
	LastUsedAt   *time.Time
}

// Directory is the credential lookup table consumed by the principal
// resolver. Implementations store key hashes only.
type Directory interface {
	// LookupByKeyHash returns the user owning the API key with the given
	// SHA-256 hash. Returns ErrNotFound if no key matches.
	LookupByKeyHash(ctx context.Context, keyHash string) (*User, error)

	// GetUser returns a user by ID. Returns ErrNotFound if absent.
	GetUser(ctx context.Context, id string) (*User, error)

	// CreateUser creates a user with a freshly generated API key and
	// returns the user plus the plaintext key. The plaintext is returned
	// exactly once and never persisted. An empty id generates one.
	// Returns ErrUserExists if the ID is taken.
	CreateUser(ctx context.Context, id, tierName string) (*User, string, error)

	// RegenerateKey replaces the user's API key and returns the new
	// plaintext. The old key stops working immediately.
	// Returns ErrNotFound if the user does not exist.
	RegenerateKey(ctx context.Context, id string) (string, error)

	// TouchLastUsed records that the user's key was just used. Callers
	// treat this as fire-and-forget: failures are logged, not propagated.
	TouchLastUsed(ctx context.Context, id string) error

	// Ping verifies connectivity to the directory backend.
	Ping(ctx context.Context) error

	// Close releases any resources held by the directory.
	Close() error
}

// HashKey returns the hex SHA-256 digest of an API key. This is the only
// form in which keys are stored or compared.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// NewAPIKey generates a new plaintext API key with the sk_ prefix.
func NewAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("directory: failed to generate API key: %w", err)
	}
	return "sk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidUserID reports whether id is non-empty and restricted to the safe
// character set [A-Za-z0-9_-]. Record keys embed user IDs between colons,
// so a colon inside an ID would make the key composition ambiguous.
func ValidUserID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// SeedDemoUsers creates one demo user per tier and returns tier -> plaintext
// key for the users that were newly created. Existing users are skipped.
func SeedDemoUsers(ctx context.Context, d Directory) (map[string]string, error) {
	demo := []struct {
		id   string
		tier string
	}{
		{"user_free_001", "free"},
		{"user_pro_001", "pro"},
		{"user_ent_001", "enterprise"},
	}

	keys := make(map[string]string)
	for _, u := range demo {
		_, key, err := d.CreateUser(ctx, u.id, u.tier)
		if errors.Is(err, ErrUserExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		keys[u.tier] = key
	}
	return keys, nil
}
