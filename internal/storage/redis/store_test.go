package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stashkv/stash/internal/storage"
)

// newTestStore creates a miniredis instance and returns a connected store.
func newTestStore(t *testing.T) (*RecordStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRecordStore(Options{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRecordStore(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NotNil(t, store)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := NewRecordStore(Options{
			URL:         "redis://localhost:1",
			DialTimeout: 100 * time.Millisecond,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect")
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewRecordStore(Options{URL: "invalid://url"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse URL")
	})
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	data := json.RawMessage(`{"task":"summarize","step":2}`)
	memoryID, err := store.Create(ctx, "user_a", data, 60*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, memoryID)

	rec, err := store.Get(ctx, "user_a", memoryID)
	require.NoError(t, err)
	assert.Equal(t, memoryID, rec.MemoryID)
	assert.JSONEq(t, string(data), string(rec.Data))
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Nil(t, rec.UpdatedAt)
	assert.Greater(t, rec.TTLRemaining, time.Duration(0))
	assert.LessOrEqual(t, rec.TTLRemaining, 60*time.Second)
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := store.Create(ctx, "user_a", json.RawMessage(`1`), time.Minute)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate memory ID %s", id)
		seen[id] = true
	}
}

func TestGetMissingRecord(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "user_a", "nonexistent123")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNamespaceIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{"private":"data"}`), time.Minute)
	require.NoError(t, err)

	// Another user cannot reach the record through any operation.
	_, err = store.Get(ctx, "user_b", memoryID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Update(ctx, "user_b", memoryID, json.RawMessage(`{}`), 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	existed, err := store.Delete(ctx, "user_b", memoryID)
	require.NoError(t, err)
	assert.False(t, existed)

	// The owner still can.
	rec, err := store.Get(ctx, "user_a", memoryID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"private":"data"}`, string(rec.Data))
}

func TestUpdateDataOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{"v":1}`), time.Minute)
	require.NoError(t, err)

	rec, err := store.Update(ctx, "user_a", memoryID, json.RawMessage(`{"v":2}`), 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(rec.Data))
	require.NotNil(t, rec.UpdatedAt)
	// Data replacement keeps the remaining TTL.
	assert.LessOrEqual(t, rec.TTLRemaining, time.Minute)
	assert.Greater(t, rec.TTLRemaining, time.Duration(0))
}

func TestUpdateExtendsTTLAdditively(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{"v":1}`), 60*time.Second)
	require.NoError(t, err)

	rec, err := store.Update(ctx, "user_a", memoryID, nil, 120*time.Second)
	require.NoError(t, err)
	// New expiry is remaining + extra, not reset-to-extra.
	assert.Greater(t, rec.TTLRemaining, 120*time.Second)
	assert.LessOrEqual(t, rec.TTLRemaining, 180*time.Second)
	// Payload untouched.
	assert.JSONEq(t, `{"v":1}`, string(rec.Data))
}

func TestUpdateMissingRecord(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Update(context.Background(), "user_a", "nope", json.RawMessage(`{}`), time.Minute)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{}`), time.Minute)
	require.NoError(t, err)

	existed, err := store.Delete(ctx, "user_a", memoryID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, "user_a", memoryID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = store.Get(ctx, "user_a", memoryID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExpiryMakesRecordGone(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{"v":1}`), time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = store.Get(ctx, "user_a", memoryID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Update(ctx, "user_a", memoryID, nil, time.Minute)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	existed, err := store.Delete(ctx, "user_a", memoryID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestExpire(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{}`), time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Expire(ctx, "user_a", memoryID, time.Minute))

	rec, err := store.Get(ctx, "user_a", memoryID)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.TTLRemaining, time.Minute)

	err = store.Expire(ctx, "user_a", "nonexistent123", time.Minute)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "", json.RawMessage(`{}`), time.Minute)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.Create(ctx, "user_a", json.RawMessage(`{}`), 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUnreachableBackendReportsUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	memoryID, err := store.Create(ctx, "user_a", json.RawMessage(`{}`), time.Minute)
	require.NoError(t, err)

	mr.Close()

	_, err = store.Get(ctx, "user_a", memoryID)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	assert.Error(t, store.Ping(ctx))
}
