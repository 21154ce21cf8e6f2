// Package ratelimit provides per-principal token bucket admission control.
//
// Buckets refill lazily from elapsed wall-clock time at check time, so no
// background timer is needed for correctness; a janitor only evicts idle
// buckets to bound memory.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config shapes the per-principal buckets.
type Config struct {
	// Capacity is the burst size: tokens available to an idle principal.
	Capacity int

	// RefillPerSec is the sustained refill rate in tokens per second.
	RefillPerSec float64

	// IdleTTL evicts buckets that have not been touched for this long.
	IdleTTL time.Duration
}

// bucket pairs a limiter with its last-touched time for eviction.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a concurrency-safe collection of per-principal token buckets.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket

	stop chan struct{}
	once sync.Once
}

// New creates a Limiter and starts its eviction janitor.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}

	go l.janitor()
	return l
}

// Allow consumes one token from the principal's bucket, reporting whether
// the request is admitted. A new principal starts with a full bucket.
func (l *Limiter) Allow(principalID string) bool {
	return l.allowAt(principalID, time.Now())
}

// allowAt is the clock-injected core, shared with tests.
func (l *Limiter) allowAt(principalID string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[principalID]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RefillPerSec), l.cfg.Capacity),
		}
		l.buckets[principalID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	// AllowN computes the lazy refill from the supplied time; tokens are
	// clamped to [0, capacity] inside the limiter.
	return b.limiter.AllowN(now, 1)
}

// Len reports the number of live buckets, for metrics and tests.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the eviction janitor.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// janitor periodically drops buckets idle beyond the TTL.
func (l *Limiter) janitor() {
	interval := l.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.evictIdle(now)
		}
	}
}

// evictIdle removes buckets not seen since now - IdleTTL.
func (l *Limiter) evictIdle(now time.Time) {
	cutoff := now.Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}
