package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsTable(t *testing.T) {
	tests := []struct {
		tier            Tier
		maxPayloadBytes int64
		defaultTTL      time.Duration
		maxTTL          time.Duration
		maxRecords      int
		ratePerMinute   int
	}{
		{Free, 1_048_576, time.Hour, time.Hour, 100, 60},
		{Pro, 52_428_800, 24 * time.Hour, 24 * time.Hour, 1000, 300},
		{Enterprise, 524_288_000, 24 * time.Hour, 7 * 24 * time.Hour, 10000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			limits := tt.tier.Limits()
			assert.Equal(t, tt.maxPayloadBytes, limits.MaxPayloadBytes)
			assert.Equal(t, tt.defaultTTL, limits.DefaultTTL)
			assert.Equal(t, tt.maxTTL, limits.MaxTTL)
			assert.Equal(t, tt.maxRecords, limits.MaxRecords)
			assert.Equal(t, tt.ratePerMinute, limits.RatePerMinute)
		})
	}
}

func TestParse(t *testing.T) {
	for _, name := range []string{"free", "pro", "enterprise"} {
		parsed, err := Parse(name)
		require.NoError(t, err)
		assert.Equal(t, name, parsed.String())
	}

	// Stored values may carry whitespace or mixed case.
	parsed, err := Parse(" Enterprise ")
	require.NoError(t, err)
	assert.Equal(t, Enterprise, parsed)

	_, err = Parse("platinum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")

	_, err = Parse("")
	require.Error(t, err)
}
