// Package tier defines the service tiers and the policy limits attached to
// them. Limits are a pure function of the tier: nothing here performs I/O or
// holds mutable state.
package tier

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a named service level controlling payload size, TTL bounds, record
// quota, and request rate.
type Tier int

const (
	Free Tier = iota
	Pro
	Enterprise
)

// String returns the canonical lowercase name of the tier, matching the
// values stored in the credential directory.
func (t Tier) String() string {
	switch t {
	case Free:
		return "free"
	case Pro:
		return "pro"
	case Enterprise:
		return "enterprise"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Parse converts a stored tier name into a Tier. It is the single point
// where tier strings enter the system; unknown values are rejected here so
// that policy decisions never compare strings.
func Parse(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return Free, nil
	case "pro":
		return Pro, nil
	case "enterprise":
		return Enterprise, nil
	default:
		return Free, fmt.Errorf("tier: unknown tier %q", s)
	}
}

// Limits holds the numeric policy limits for a tier.
type Limits struct {
	// MaxPayloadBytes is the largest stored payload allowed, in bytes.
	MaxPayloadBytes int64

	// DefaultTTL is applied when a request does not specify a TTL.
	DefaultTTL time.Duration

	// MaxTTL is the ceiling for a record's remaining TTL. Requested TTLs
	// above it are clamped down, never rejected.
	MaxTTL time.Duration

	// MaxRecords is the per-user record quota.
	MaxRecords int

	// RatePerMinute is the per-user request ceiling.
	RatePerMinute int
}

// Limits returns the fixed limits for the tier.
func (t Tier) Limits() Limits {
	switch t {
	case Pro:
		return Limits{
			MaxPayloadBytes: 52_428_800, // 50 MB
			DefaultTTL:      24 * time.Hour,
			MaxTTL:          24 * time.Hour,
			MaxRecords:      1000,
			RatePerMinute:   300,
		}
	case Enterprise:
		return Limits{
			MaxPayloadBytes: 524_288_000, // 500 MB
			DefaultTTL:      24 * time.Hour,
			MaxTTL:          7 * 24 * time.Hour,
			MaxRecords:      10000,
			RatePerMinute:   1000,
		}
	default:
		return Limits{
			MaxPayloadBytes: 1_048_576, // 1 MB
			DefaultTTL:      time.Hour,
			MaxTTL:          time.Hour,
			MaxRecords:      100,
			RatePerMinute:   60,
		}
	}
}
