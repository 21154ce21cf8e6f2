// Package health derives a coarse service health state from queue metrics.
// It holds no goroutines: every check reads a fresh metrics snapshot.
package health

import (
	"sync"

	"github.com/hearthdocs/vault-api/internal/queue"
)

// State is the coarse health classification.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// recentErrorCap bounds the ring buffer of recent handler errors.
const recentErrorCap = 10

// Thresholds tune the classification.
type Thresholds struct {
	// AlertQueueDepth marks the service degraded when more jobs wait.
	AlertQueueDepth int64

	// FailedDegraded and FailedUnhealthy classify on the dead letter
	// count. FailedUnhealthy must be at least FailedDegraded.
	FailedDegraded  int64
	FailedUnhealthy int64

	// BacklogThreshold marks the service degraded when every worker is
	// busy and more jobs than this are waiting.
	BacklogThreshold int64
}

// StatsSource is the slice of the queue runner the monitor reads.
type StatsSource interface {
	Stats() queue.Snapshot
	WorkerCount() int
}

// Status is one health evaluation.
type Status struct {
	State        State          `json:"state"`
	Reasons      []string       `json:"reasons,omitempty"`
	Counts       queue.Snapshot `json:"counts"`
	RecentErrors []string       `json:"recent_errors,omitempty"`
}

// Monitor classifies the pipeline from queue metrics and a ring buffer of
// recent handler errors.
type Monitor struct {
	thresholds Thresholds

	mu     sync.Mutex
	source StatsSource
	errs   []string
}

// NewMonitor creates a Monitor. The stats source may be attached later via
// SetSource; until then every check reports unhealthy.
func NewMonitor(thresholds Thresholds) *Monitor {
	return &Monitor{thresholds: thresholds}
}

// SetSource attaches the queue runner once it is constructed.
func (m *Monitor) SetSource(src StatsSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
}

// RecordError appends a handler error to the recent error buffer, evicting
// the oldest entry past the cap. Wired as the runner's error hook.
func (m *Monitor) RecordError(job *queue.Job, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errs = append(m.errs, job.Type+": "+err.Error())
	if len(m.errs) > recentErrorCap {
		m.errs = m.errs[len(m.errs)-recentErrorCap:]
	}
}

// Check evaluates the current state. The worst matching classification
// wins; every matching reason is reported.
func (m *Monitor) Check() Status {
	m.mu.Lock()
	source := m.source
	recent := append([]string(nil), m.errs...)
	m.mu.Unlock()

	if source == nil {
		return Status{
			State:        StateUnhealthy,
			Reasons:      []string{"job pipeline not initialized"},
			RecentErrors: recent,
		}
	}

	counts := source.Stats()
	state := StateHealthy
	var reasons []string

	degrade := func(reason string) {
		if state == StateHealthy {
			state = StateDegraded
		}
		reasons = append(reasons, reason)
	}

	if counts.Waiting > m.thresholds.AlertQueueDepth {
		degrade("queue depth above alert threshold")
	}
	if counts.Active >= int64(source.WorkerCount()) && counts.Waiting > m.thresholds.BacklogThreshold {
		degrade("all workers busy with growing backlog")
	}

	switch {
	case counts.Failed > m.thresholds.FailedUnhealthy:
		state = StateUnhealthy
		reasons = append(reasons, "dead letter count above unhealthy threshold")
	case counts.Failed > m.thresholds.FailedDegraded:
		degrade("dead letter count above degraded threshold")
	}

	return Status{
		State:        state,
		Reasons:      reasons,
		Counts:       counts,
		RecentErrors: recent,
	}
}
