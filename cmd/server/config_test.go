package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hearthdocs/vault-api/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			WorkerCount:       4,
			QueueSize:         256,
			JobTimeoutSeconds: 120,
			MaxAttempts:       3,
			BackoffBaseMillis: 500,
			BackoffMaxMillis:  30000,
			AlertQueueDepth:   100,
			FailedDegraded:    5,
			FailedUnhealthy:   20,
			BacklogThreshold:  50,
		},
		RateLimit: config.RateLimitConfig{
			Capacity:       10,
			RefillPerSec:   1.5,
			IdleTTLSeconds: 600,
		},
	}
}

func TestQueueConfigTranslation(t *testing.T) {
	qc := queueConfig(testConfig())

	assert.Equal(t, 4, qc.WorkerCount)
	assert.Equal(t, 256, qc.QueueSize)
	assert.Equal(t, 2*time.Minute, qc.JobTimeout)
	assert.Equal(t, 3, qc.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, qc.BackoffBase)
	assert.Equal(t, 30*time.Second, qc.BackoffMax)
}

func TestHealthThresholdsTranslation(t *testing.T) {
	th := healthThresholds(testConfig())

	assert.Equal(t, int64(100), th.AlertQueueDepth)
	assert.Equal(t, int64(5), th.FailedDegraded)
	assert.Equal(t, int64(20), th.FailedUnhealthy)
	assert.Equal(t, int64(50), th.BacklogThreshold)
}

func TestRatelimitConfigTranslation(t *testing.T) {
	rc := ratelimitConfig(testConfig())

	assert.Equal(t, 10, rc.Capacity)
	assert.Equal(t, 1.5, rc.RefillPerSec)
	assert.Equal(t, 10*time.Minute, rc.IdleTTL)
}
