package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	l := New(cfg)
	t.Cleanup(l.Close)
	return l
}

func TestLimiterBurstThenDeny(t *testing.T) {
	const capacity = 5
	l := newTestLimiter(t, Config{Capacity: capacity, RefillPerSec: 1, IdleTTL: time.Minute})

	now := time.Now()

	// A fresh principal gets exactly the full burst.
	for i := 0; i < capacity; i++ {
		assert.True(t, l.allowAt("user:a", now), "request %d should be admitted", i+1)
	}

	// The next instantaneous request is denied.
	assert.False(t, l.allowAt("user:a", now))
}

func TestLimiterRefillGrantsOneToken(t *testing.T) {
	const (
		capacity  = 3
		refillPer = 2.0 // tokens per second
	)
	l := newTestLimiter(t, Config{Capacity: capacity, RefillPerSec: refillPer, IdleTTL: time.Minute})

	now := time.Now()
	for i := 0; i < capacity; i++ {
		require.True(t, l.allowAt("user:a", now))
	}
	require.False(t, l.allowAt("user:a", now))

	// After 1/R seconds exactly one token has accrued.
	later := now.Add(time.Duration(float64(time.Second) / refillPer))
	assert.True(t, l.allowAt("user:a", later))
	assert.False(t, l.allowAt("user:a", later))
}

func TestLimiterIsolatesPrincipals(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 1, RefillPerSec: 1, IdleTTL: time.Minute})

	now := time.Now()
	require.True(t, l.allowAt("user:a", now))
	require.False(t, l.allowAt("user:a", now))

	// Exhausting one principal never affects another.
	assert.True(t, l.allowAt("user:b", now))
}

func TestLimiterSharedHouseholdKey(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 2, RefillPerSec: 1, IdleTTL: time.Minute})

	now := time.Now()

	// Two members submitting under the same household key draw from one
	// bucket.
	require.True(t, l.allowAt("household:h1", now))
	require.True(t, l.allowAt("household:h1", now))
	assert.False(t, l.allowAt("household:h1", now))
}

func TestLimiterEvictsIdleBuckets(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 1, RefillPerSec: 1, IdleTTL: time.Minute})

	now := time.Now()
	l.allowAt("user:a", now)
	l.allowAt("user:b", now.Add(50*time.Second))
	require.Equal(t, 2, l.Len())

	// Only the bucket idle past the TTL is dropped.
	l.evictIdle(now.Add(90 * time.Second))
	assert.Equal(t, 1, l.Len())

	l.evictIdle(now.Add(5 * time.Minute))
	assert.Equal(t, 0, l.Len())
}

func TestLimiterConcurrentAccess(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 100, RefillPerSec: 100, IdleTTL: time.Minute})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			key := []string{"user:a", "user:b"}[id%2]
			for j := 0; j < 50; j++ {
				l.Allow(key)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, 2, l.Len())
}
