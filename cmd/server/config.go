package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/health"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/ratelimit"
)

// loadConfiguration loads and validates the application configuration.
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger installs the configured structured logger (Setup makes it the
// process default) and logs the effective configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	log := logger.Setup(cfg.Server.LogLevel)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_backend", cfg.Storage.Backend,
		"sync_fallback", cfg.Queue.SyncFallback)
	return log
}

// queueConfig translates the flat configuration section into the queue's
// runtime config.
func queueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		WorkerCount: cfg.Queue.WorkerCount,
		QueueSize:   cfg.Queue.QueueSize,
		JobTimeout:  time.Duration(cfg.Queue.JobTimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffBaseMillis) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Queue.BackoffMaxMillis) * time.Millisecond,
		StopGrace:   30 * time.Second,
	}
}

// healthThresholds translates the queue configuration section into the
// health monitor's thresholds.
func healthThresholds(cfg *config.Config) health.Thresholds {
	return health.Thresholds{
		AlertQueueDepth:  int64(cfg.Queue.AlertQueueDepth),
		FailedDegraded:   int64(cfg.Queue.FailedDegraded),
		FailedUnhealthy:  int64(cfg.Queue.FailedUnhealthy),
		BacklogThreshold: int64(cfg.Queue.BacklogThreshold),
	}
}

// ratelimitConfig translates the rate limit configuration section.
func ratelimitConfig(cfg *config.Config) ratelimit.Config {
	return ratelimit.Config{
		Capacity:     cfg.RateLimit.Capacity,
		RefillPerSec: cfg.RateLimit.RefillPerSec,
		IdleTTL:      time.Duration(cfg.RateLimit.IdleTTLSeconds) * time.Second,
	}
}
