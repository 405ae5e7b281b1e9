// Package redis provides the Redis implementation of storage.RecordStore.
//
// Records live under keys of the form user:{user_id}:{memory_id} so that
// each user's records form an independent namespace. Expiry is delegated
// entirely to Redis key TTLs: creation is a single SET-with-expiry, and a
// key whose TTL has elapsed is indistinguishable from one that never
// existed.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stashkv/stash/internal/breaker"
	"github.com/stashkv/stash/internal/storage"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// DialTimeout is the maximum time to wait for connection establishment.
	DialTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations.
	WriteTimeout time.Duration
}

// RecordStore implements storage.RecordStore using go-redis/v9.
type RecordStore struct {
	client  *goredis.Client
	breaker *breaker.Breaker
}

// envelope is the JSON value stored under each record key.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// NewRecordStore connects to Redis and verifies the connection with a ping.
// The connection is shared process-wide; callers own the Close call at
// shutdown.
func NewRecordStore(opts Options) (*RecordStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to parse URL: %w", err)
	}
	redisOpts.DialTimeout = opts.DialTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := goredis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return &RecordStore{
		client:  client,
		breaker: breaker.New("redis"),
	}, nil
}

// recordKey composes the namespaced key for a record. Memory IDs are
// base64url and user IDs are restricted to a safe character set at
// directory level, so the colon separators are unambiguous.
func recordKey(userID, memoryID string) string {
	return fmt.Sprintf("user:%s:%s", userID, memoryID)
}

// newMemoryID returns a fresh URL-safe, high-entropy record identifier.
// 9 random bytes encode to 12 base64url characters; collisions within a
// single user's namespace are negligible at that entropy.
func newMemoryID() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("redis: failed to generate memory ID: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// run executes fn through the circuit breaker and maps transport-level
// failures to storage.ErrUnavailable. fn must translate goredis.Nil itself
// so that a missing key never counts as a backend failure.
func (s *RecordStore) run(ctx context.Context, fn func() error) error {
	_, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return fmt.Errorf("redis: circuit open: %w", storage.ErrUnavailable)
		}
		return fmt.Errorf("redis: %v: %w", err, storage.ErrUnavailable)
	}
	return nil
}

// Create stores data under a freshly generated memory ID with the given TTL.
// SET with an expiration argument is a single atomic operation in Redis, so
// the key is never visible without its TTL attached.
func (s *RecordStore) Create(ctx context.Context, userID string, data json.RawMessage, ttl time.Duration) (string, error) {
	if userID == "" || ttl <= 0 {
		return "", storage.ErrInvalidInput
	}

	memoryID, err := newMemoryID()
	if err != nil {
		return "", err
	}

	value, err := json.Marshal(envelope{
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("redis: failed to marshal record: %w", err)
	}

	key := recordKey(userID, memoryID)
	if err := s.run(ctx, func() error {
		return s.client.Set(ctx, key, value, ttl).Err()
	}); err != nil {
		return "", err
	}

	return memoryID, nil
}

// Get returns the record and its remaining TTL, or storage.ErrNotFound if
// the key is absent or its TTL has elapsed.
func (s *RecordStore) Get(ctx context.Context, userID, memoryID string) (*storage.Record, error) {
	env, ttl, err := s.fetch(ctx, recordKey(userID, memoryID))
	if err != nil {
		return nil, err
	}

	return &storage.Record{
		MemoryID:     memoryID,
		Data:         env.Data,
		CreatedAt:    env.CreatedAt,
		UpdatedAt:    env.UpdatedAt,
		TTLRemaining: ttl,
	}, nil
}

// Update applies a read-modify-write: data (when non-nil) replaces the
// stored payload wholesale, and extra (when positive) is added to the
// remaining TTL. The rewritten envelope and the new TTL are written back as
// one atomic SET-with-expiry.
//
// Known consistency limitation: the read and the write-back are two
// separate Redis operations, so two concurrent updates to the same record
// may interleave. Last write wins on data, and which TTL survives is
// non-deterministic. Single-key SET/DEL operations remain atomic.
func (s *RecordStore) Update(ctx context.Context, userID, memoryID string, data json.RawMessage, extra time.Duration) (*storage.Record, error) {
	key := recordKey(userID, memoryID)

	env, ttl, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	if data != nil {
		env.Data = data
	}
	now := time.Now().UTC()
	env.UpdatedAt = &now

	newTTL := ttl
	if extra > 0 {
		newTTL += extra
	}

	value, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to marshal record: %w", err)
	}

	if err := s.run(ctx, func() error {
		return s.client.Set(ctx, key, value, newTTL).Err()
	}); err != nil {
		return nil, err
	}

	return &storage.Record{
		MemoryID:     memoryID,
		Data:         env.Data,
		CreatedAt:    env.CreatedAt,
		UpdatedAt:    env.UpdatedAt,
		TTLRemaining: newTTL,
	}, nil
}

// Expire resets the record's remaining TTL to exactly ttl.
func (s *RecordStore) Expire(ctx context.Context, userID, memoryID string, ttl time.Duration) error {
	if ttl <= 0 {
		return storage.ErrInvalidInput
	}

	var ok bool
	err := s.run(ctx, func() error {
		v, err := s.client.Expire(ctx, recordKey(userID, memoryID), ttl).Result()
		if err != nil {
			return err
		}
		ok = v
		return nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the record immediately and reports whether it existed.
func (s *RecordStore) Delete(ctx context.Context, userID, memoryID string) (bool, error) {
	var existed bool
	err := s.run(ctx, func() error {
		n, err := s.client.Del(ctx, recordKey(userID, memoryID)).Result()
		if err != nil {
			return err
		}
		existed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// Ping verifies connectivity. It bypasses the circuit breaker so that a
// health probe reports the backend's actual state rather than the breaker's.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %v: %w", err, storage.ErrUnavailable)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RecordStore) Close() error {
	return s.client.Close()
}

// fetch reads the envelope and remaining TTL for a key, translating a
// missing or expired key into storage.ErrNotFound.
func (s *RecordStore) fetch(ctx context.Context, key string) (*envelope, time.Duration, error) {
	var (
		raw     string
		ttl     time.Duration
		missing bool
	)

	err := s.run(ctx, func() error {
		v, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			missing = true
			return nil
		}
		if err != nil {
			return err
		}

		t, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			return err
		}

		raw, ttl = v, t
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	// TTL <= 0 covers the -2 (missing) and -1 (no expiry) sentinels as well
	// as a key at the expiry boundary; all are treated as gone.
	if missing || ttl <= 0 {
		return nil, 0, storage.ErrNotFound
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, 0, fmt.Errorf("redis: failed to unmarshal record at %s: %w", key, err)
	}

	return &env, ttl, nil
}
