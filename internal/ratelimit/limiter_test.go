package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stashkv/stash/internal/tier"
)

func TestAllowWithinBurst(t *testing.T) {
	l, err := NewLimiter(100)
	require.NoError(t, err)

	// A free-tier bucket starts with a full minute's burst (60 tokens).
	for i := 0; i < 60; i++ {
		assert.True(t, l.Allow("user_a", tier.Free), "request %d should be allowed", i)
	}
	assert.False(t, l.Allow("user_a", tier.Free))
}

func TestUsersAreIsolated(t *testing.T) {
	l, err := NewLimiter(100)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("user_a", tier.Free))
	}
	require.False(t, l.Allow("user_a", tier.Free))

	// Exhausting one user's bucket does not touch another's.
	assert.True(t, l.Allow("user_b", tier.Free))
}

func TestTierChangeGetsFreshBucket(t *testing.T) {
	l, err := NewLimiter(100)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("user_a", tier.Free))
	}
	require.False(t, l.Allow("user_a", tier.Free))

	// After an upgrade the user is rated against the new tier.
	assert.True(t, l.Allow("user_a", tier.Pro))
}

func TestBoundedTracking(t *testing.T) {
	l, err := NewLimiter(2)
	require.NoError(t, err)

	assert.True(t, l.Allow("u1", tier.Free))
	assert.True(t, l.Allow("u2", tier.Free))
	assert.True(t, l.Allow("u3", tier.Free)) // evicts u1

	// Evicted users get a fresh bucket rather than an error.
	assert.True(t, l.Allow("u1", tier.Free))
}
