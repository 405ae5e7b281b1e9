// Package auth resolves presented API credentials to principals.
//
// The resolver hashes the presented key and looks it up by hash in the
// credential directory; plaintext keys are never stored or compared, so
// lookup timing does not depend on how close a guess is to a real key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stashkv/stash/internal/directory"
	"github.com/stashkv/stash/internal/tier"
)

// ErrUnauthenticated indicates that the credential is absent or does not
// match any stored key hash.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Principal is the authenticated identity plus its resolved tier. The tier
// is fixed for the lifetime of the request.
type Principal struct {
	UserID string
	Tier   tier.Tier
}

// Resolver turns a raw credential into a Principal.
type Resolver interface {
	// Resolve returns the principal for the credential, ErrUnauthenticated
	// when it matches no stored key, or directory.ErrUnavailable when the
	// directory cannot be reached.
	Resolve(ctx context.Context, credential string) (*Principal, error)
}

// APIKeyResolver resolves API keys against the credential directory.
type APIKeyResolver struct {
	dir    directory.Directory
	logger *slog.Logger
}

// NewAPIKeyResolver creates a resolver backed by the given directory.
func NewAPIKeyResolver(dir directory.Directory, logger *slog.Logger) *APIKeyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyResolver{dir: dir, logger: logger}
}

// Resolve hashes the credential, looks it up, and parses the stored tier.
// On success it records the key use asynchronously; that write is
// fire-and-forget and never affects the outcome.
func (r *APIKeyResolver) Resolve(ctx context.Context, credential string) (*Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	user, err := r.dir.LookupByKeyHash(ctx, directory.HashKey(credential))
	if errors.Is(err, directory.ErrNotFound) {
		r.logger.Info("api key rejected", "key_prefix", keyPrefix(credential))
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	t, err := tier.Parse(user.Tier)
	if err != nil {
		return nil, fmt.Errorf("auth: user %s has invalid tier: %w", user.ID, err)
	}

	go r.touchLastUsed(user.ID)

	return &Principal{UserID: user.ID, Tier: t}, nil
}

// touchLastUsed records key usage with its own context so that the write
// survives the request ending.
func (r *APIKeyResolver) touchLastUsed(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.dir.TouchLastUsed(ctx, userID); err != nil {
		r.logger.Debug("failed to record key use", "user_id", userID, "error", err)
	}
}

// keyPrefix returns a short, safe-to-log prefix of a credential.
func keyPrefix(credential string) string {
	if len(credential) <= 10 {
		return credential
	}
	return credential[:10]
}
