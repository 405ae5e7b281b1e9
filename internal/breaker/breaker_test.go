package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func failing() (interface{}, error) { return nil, errBackend }

func TestBreakerPassesThroughWhenClosed(t *testing.T) {
	b := New("test")
	ctx := context.Background()

	result, err := b.Execute(ctx, func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewWithConfig("test", Config{MaxFailures: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Execute(ctx, failing)
		assert.ErrorIs(t, err, errBackend)
	}

	assert.Equal(t, "open", b.State())

	// Open circuit rejects without invoking the function.
	called := false
	_, err := b.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	b := NewWithConfig("test", Config{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	_, err := b.Execute(ctx, failing)
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, "open", b.State())

	time.Sleep(30 * time.Millisecond)

	_, err = b.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerHonorsCancelledContext(t *testing.T) {
	b := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Execute(ctx, func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", b.State())
}

func TestBreakerIgnoresCancellationsForTripCounting(t *testing.T) {
	b := NewWithConfig("test", Config{MaxFailures: 2, Timeout: time.Minute})
	ctx := context.Background()

	// Clients hanging up mid-call must not open the circuit against a
	// healthy backend.
	for i := 0; i < 5; i++ {
		_, err := b.Execute(ctx, func() (interface{}, error) {
			return nil, context.Canceled
		})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())

	result, err := b.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	// Real backend failures still trip it.
	for i := 0; i < 2; i++ {
		_, err := b.Execute(ctx, failing)
		assert.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, "open", b.State())
}
