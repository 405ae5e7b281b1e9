// Package ratelimit enforces per-user request rates using token buckets.
//
// Each user gets an independent bucket sized from their tier's
// requests-per-minute limit. Buckets live in a bounded LRU cache so the
// tracked-user set cannot grow without limit; an evicted user simply gets a
// fresh (full) bucket on their next request.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/stashkv/stash/internal/tier"
)

// DefaultMaxTrackedUsers bounds the limiter cache when no size is given.
const DefaultMaxTrackedUsers = 10000

// Limiter hands out per-user token buckets.
type Limiter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *rate.Limiter]
}

// NewLimiter creates a limiter tracking at most maxUsers buckets.
// maxUsers <= 0 uses DefaultMaxTrackedUsers.
func NewLimiter(maxUsers int) (*Limiter, error) {
	if maxUsers <= 0 {
		maxUsers = DefaultMaxTrackedUsers
	}
	cache, err := lru.New[string, *rate.Limiter](maxUsers)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: failed to create cache: %w", err)
	}
	return &Limiter{cache: cache}, nil
}

// Allow reports whether the user may make a request right now, consuming a
// token when so. The bucket refills at the tier's per-minute rate and
// bursts up to one minute's worth of requests.
func (l *Limiter) Allow(userID string, t tier.Tier) bool {
	return l.bucket(userID, t).Allow()
}

// bucket returns the user's token bucket, creating it when absent. The
// cache key includes the tier so a tier change takes effect on the next
// request instead of reusing the old rate.
func (l *Limiter) bucket(userID string, t tier.Tier) *rate.Limiter {
	key := userID + ":" + t.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.cache.Get(key); ok {
		return lim
	}

	perMinute := t.Limits().RatePerMinute
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	l.cache.Add(key, lim)
	return lim
}
