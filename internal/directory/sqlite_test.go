package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDirectory creates an in-memory SQLite directory.
func newTestDirectory(t *testing.T) *SQLiteDirectory {
	t.Helper()
	dir, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	return dir
}

func TestCreateUserAndLookup(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	user, apiKey, err := dir.CreateUser(ctx, "test_free", "free")
	require.NoError(t, err)
	assert.Equal(t, "test_free", user.ID)
	assert.Equal(t, "free", user.Tier)
	assert.True(t, strings.HasPrefix(apiKey, "sk_"))

	found, err := dir.LookupByKeyHash(ctx, HashKey(apiKey))
	require.NoError(t, err)
	assert.Equal(t, "test_free", found.ID)
	assert.Equal(t, "free", found.Tier)
	assert.Nil(t, found.LastUsedAt)
}

func TestPlaintextKeyNeverStored(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, apiKey, err := dir.CreateUser(ctx, "test_free", "free")
	require.NoError(t, err)

	var hash string
	err = dir.DB().QueryRowContext(ctx,
		"SELECT api_key_hash FROM users WHERE id = ?", "test_free").Scan(&hash)
	require.NoError(t, err)
	assert.NotEqual(t, apiKey, hash)
	assert.NotContains(t, hash, apiKey)
	assert.Equal(t, HashKey(apiKey), hash)
}

func TestCreateUserGeneratesID(t *testing.T) {
	dir := newTestDirectory(t)

	user, _, err := dir.CreateUser(context.Background(), "", "pro")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.ID, "user_"))
	assert.True(t, ValidUserID(user.ID))
}

func TestCreateUserRejectsBadInput(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, _, err := dir.CreateUser(ctx, "has:colon", "free")
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, _, err = dir.CreateUser(ctx, "ok_id", "platinum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestCreateUserDuplicate(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, _, err := dir.CreateUser(ctx, "dup", "free")
	require.NoError(t, err)

	_, _, err = dir.CreateUser(ctx, "dup", "pro")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLookupUnknownKey(t *testing.T) {
	dir := newTestDirectory(t)

	_, err := dir.LookupByKeyHash(context.Background(), HashKey("sk_bogus"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegenerateKey(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, oldKey, err := dir.CreateUser(ctx, "test_pro", "pro")
	require.NoError(t, err)

	newKey, err := dir.RegenerateKey(ctx, "test_pro")
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	// Old key stops working immediately, new key resolves.
	_, err = dir.LookupByKeyHash(ctx, HashKey(oldKey))
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := dir.LookupByKeyHash(ctx, HashKey(newKey))
	require.NoError(t, err)
	assert.Equal(t, "test_pro", found.ID)

	_, err = dir.RegenerateKey(ctx, "no_such_user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchLastUsed(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, _, err := dir.CreateUser(ctx, "test_free", "free")
	require.NoError(t, err)

	require.NoError(t, dir.TouchLastUsed(ctx, "test_free"))

	user, err := dir.GetUser(ctx, "test_free")
	require.NoError(t, err)
	require.NotNil(t, user.LastUsedAt)
}

func TestSeedDemoUsers(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	keys, err := SeedDemoUsers(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	for _, tierName := range []string{"free", "pro", "enterprise"} {
		assert.Contains(t, keys, tierName)
	}

	// Re-seeding skips existing users.
	keys, err = SeedDemoUsers(ctx, dir)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID("user_free_001"))
	assert.True(t, ValidUserID("Agent-7"))
	assert.False(t, ValidUserID(""))
	assert.False(t, ValidUserID("user:1"))
	assert.False(t, ValidUserID("user one"))
	assert.False(t, ValidUserID("user/1"))
}
