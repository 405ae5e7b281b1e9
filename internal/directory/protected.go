package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/stashkv/stash/internal/breaker"
	"github.com/stashkv/stash/internal/tier"
)

// Protected wraps a Directory with a circuit breaker so that a dead backend
// fails fast as ErrUnavailable instead of queueing every caller on the
// driver. Lookup outcomes (ErrNotFound, ErrUserExists) and input validation
// never count as backend failures.
type Protected struct {
	inner Directory
	cb    *breaker.Breaker
}

// NewProtected wraps dir in a circuit breaker named "directory".
func NewProtected(dir Directory) *Protected {
	return &Protected{inner: dir, cb: breaker.New("directory")}
}

// run executes fn through the circuit breaker and maps transport-level
// failures to ErrUnavailable. fn must absorb domain outcomes itself so a
// missing user never counts as a backend failure.
func (p *Protected) run(ctx context.Context, fn func() error) error {
	_, err := p.cb.Execute(ctx, func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return fmt.Errorf("directory: circuit open: %w", ErrUnavailable)
		}
		return fmt.Errorf("directory: %v: %w", err, ErrUnavailable)
	}
	return nil
}

// isDomainErr reports whether err is an expected lookup or uniqueness
// outcome rather than a sign of backend trouble.
func isDomainErr(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserExists)
}

// LookupByKeyHash returns the user owning the API key with the given hash.
func (p *Protected) LookupByKeyHash(ctx context.Context, keyHash string) (*User, error) {
	var (
		user      *User
		domainErr error
	)
	err := p.run(ctx, func() error {
		u, err := p.inner.LookupByKeyHash(ctx, keyHash)
		if isDomainErr(err) {
			domainErr = err
			return nil
		}
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	if domainErr != nil {
		return nil, domainErr
	}
	return user, nil
}

// GetUser returns a user by ID.
func (p *Protected) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		user      *User
		domainErr error
	)
	err := p.run(ctx, func() error {
		u, err := p.inner.GetUser(ctx, id)
		if isDomainErr(err) {
			domainErr = err
			return nil
		}
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	if domainErr != nil {
		return nil, domainErr
	}
	return user, nil
}

// CreateUser creates a user with a freshly generated API key. Inputs are
// validated before the breaker is consulted, so a bad user ID or tier name
// cannot trip the circuit.
func (p *Protected) CreateUser(ctx context.Context, id, tierName string) (*User, string, error) {
	if id != "" && !ValidUserID(id) {
		return nil, "", ErrInvalidUserID
	}
	if _, err := tier.Parse(tierName); err != nil {
		return nil, "", err
	}

	var (
		user      *User
		apiKey    string
		domainErr error
	)
	err := p.run(ctx, func() error {
		u, key, err := p.inner.CreateUser(ctx, id, tierName)
		if isDomainErr(err) {
			domainErr = err
			return nil
		}
		user, apiKey = u, key
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if domainErr != nil {
		return nil, "", domainErr
	}
	return user, apiKey, nil
}

// RegenerateKey replaces the user's API key and returns the new plaintext.
func (p *Protected) RegenerateKey(ctx context.Context, id string) (string, error) {
	var (
		apiKey    string
		domainErr error
	)
	err := p.run(ctx, func() error {
		key, err := p.inner.RegenerateKey(ctx, id)
		if isDomainErr(err) {
			domainErr = err
			return nil
		}
		apiKey = key
		return err
	})
	if err != nil {
		return "", err
	}
	if domainErr != nil {
		return "", domainErr
	}
	return apiKey, nil
}

// TouchLastUsed records that the user's key was just used.
func (p *Protected) TouchLastUsed(ctx context.Context, id string) error {
	return p.run(ctx, func() error {
		return p.inner.TouchLastUsed(ctx, id)
	})
}

// Ping verifies connectivity. It bypasses the breaker so health checks
// report the backend's real state even while the circuit is open.
func (p *Protected) Ping(ctx context.Context) error {
	return p.inner.Ping(ctx)
}

// Close closes the underlying directory.
func (p *Protected) Close() error {
	return p.inner.Close()
}
