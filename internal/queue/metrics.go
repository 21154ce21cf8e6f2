package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks queue throughput with atomic counters. The active count
// equals the number of in-flight handlers at all times: it is adjusted in
// the same step as the state transition it mirrors.
type Metrics struct {
	waiting   atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64

	mu       sync.Mutex
	totalDur time.Duration
	samples  int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Waiting     int64
	Active      int64
	Completed   int64
	Failed      int64
	Retries     int64
	AvgDuration time.Duration
}

// Snapshot reads all counters. The counters are read independently, so the
// snapshot is consistent per counter, not across counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Waiting:     m.waiting.Load(),
		Active:      m.active.Load(),
		Completed:   m.completed.Load(),
		Failed:      m.failed.Load(),
		Retries:     m.retries.Load(),
		AvgDuration: m.avgDuration(),
	}
}

// jobQueued records a job entering the waiting state.
func (m *Metrics) jobQueued() { m.waiting.Add(1) }

// jobDropped undoes jobQueued when the buffer rejects the job.
func (m *Metrics) jobDropped() { m.waiting.Add(-1) }

// jobStarted records the waiting to active transition.
func (m *Metrics) jobStarted() {
	m.waiting.Add(-1)
	m.active.Add(1)
}

// jobCompleted records a successful finish and its duration.
func (m *Metrics) jobCompleted(d time.Duration) {
	m.active.Add(-1)
	m.completed.Add(1)

	m.mu.Lock()
	m.totalDur += d
	m.samples++
	m.mu.Unlock()
}

// jobRetried records the active to retrying transition.
func (m *Metrics) jobRetried() {
	m.active.Add(-1)
	m.retries.Add(1)
}

// jobDead records the dead letter transition. Each job increments the
// failed counter exactly once, at this terminal transition.
func (m *Metrics) jobDead() {
	m.active.Add(-1)
	m.failed.Add(1)
}

// avgDuration returns the mean handler duration across completed jobs.
func (m *Metrics) avgDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		return 0
	}
	return m.totalDur / time.Duration(m.samples)
}
