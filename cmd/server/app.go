package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/generation"
	"github.com/hearthdocs/vault-api/internal/health"
	"github.com/hearthdocs/vault-api/internal/keymanager"
	"github.com/hearthdocs/vault-api/internal/platform/extract"
	"github.com/hearthdocs/vault-api/internal/platform/insight"
	"github.com/hearthdocs/vault-api/internal/platform/postgres"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/ratelimit"
	"github.com/hearthdocs/vault-api/internal/service"
	"github.com/hearthdocs/vault-api/internal/storage"
	"github.com/hearthdocs/vault-api/internal/store"
)

// application holds the shared application dependencies so startup wiring
// and shutdown cleanup live in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	documentStore store.DocumentStore
	jobStore      queue.JobStore

	keys     *keymanager.KeyManager
	provider storage.Provider
	limiter  *ratelimit.Limiter

	registry  *queue.Registry
	runner    *queue.Runner // nil when running with the sync fallback
	submitter queue.Submitter
	monitor   *health.Monitor

	generator    generation.Generator
	vaultService *service.VaultService
}

// newApplication wires every component from configuration. Components are
// built leaves first so each dependency exists before its consumer.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	keys, err := keymanager.New(cfg.Encryption.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}
	// A wrong master key must abort startup, not corrupt documents later.
	if err := keys.SelfTest(); err != nil {
		return nil, fmt.Errorf("master key self-test failed: %w", err)
	}
	app.keys = keys
	logger.Info("key manager initialized")

	provider, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage provider: %w", err)
	}
	if s3, ok := provider.(*storage.S3Provider); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}
	app.provider = provider
	logger.Info("storage provider initialized", "backend", cfg.Storage.Backend)

	app.documentStore = postgres.NewPostgresDocumentStore(db)
	app.jobStore = postgres.NewPostgresJobStore(db)
	app.limiter = ratelimit.New(ratelimitConfig(cfg))
	app.registry = queue.NewRegistry()

	app.monitor = health.NewMonitor(healthThresholds(cfg))

	if err := app.setupSubmitter(); err != nil {
		return nil, err
	}

	if cfg.Insight.GeminiAPIKey != "" {
		gen, err := insight.NewInsightGenerator(ctx, logger.With("component", "insight_generator"), cfg.Insight)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize insight generator: %w", err)
		}
		app.generator = gen
		logger.Info("insight generator initialized", "model", cfg.Insight.ModelName)
	} else {
		logger.Info("insight generation disabled, no API key configured")
	}

	app.vaultService, err = service.NewVaultService(service.Deps{
		Documents: app.documentStore,
		Provider:  app.provider,
		Keys:      app.keys,
		Submitter: app.submitter,
		Limiter:   app.limiter,
		Extractor: extract.NewPlainTextExtractor(),
		Generator: app.generator,
		Logger:    logger.With("component", "vault_service"),
	}, service.Config{
		TempDir: cfg.Storage.TempDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vault service: %w", err)
	}
	app.vaultService.RegisterJobHandlers(app.registry)

	// Handlers must be registered before the runner recovers persisted jobs.
	if app.runner != nil {
		if err := app.runner.Start(); err != nil {
			return nil, fmt.Errorf("failed to start job runner: %w", err)
		}
		app.monitor.SetSource(app.runner)
		app.runner.SetErrorHook(app.monitor.RecordError)
	}

	logger.Info("application initialized")
	return app, nil
}

// setupSubmitter selects the job submission strategy. The sync fallback is
// an explicit configuration decision, never the result of probing.
func (app *application) setupSubmitter() error {
	if app.config.Queue.SyncFallback {
		timeout := time.Duration(app.config.Queue.JobTimeoutSeconds) * time.Second
		sync := queue.NewSyncSubmitter(app.registry, timeout, app.logger)
		// Inline failures still feed /readyz: dead letter counts and the
		// recent error buffer come from the submitter itself.
		sync.SetErrorHook(app.monitor.RecordError)
		app.monitor.SetSource(sync)
		app.submitter = sync
		app.logger.Warn("running with synchronous job execution, no durable queue")
		return nil
	}

	runner, err := queue.NewRunner(queueConfig(app.config), app.registry, app.jobStore, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create job runner: %w", err)
	}
	app.runner = runner
	app.submitter = queue.NewQueuedSubmitter(runner)
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases application resources in reverse dependency order: stop
// job intake and workers first, then the limiter janitor, then the database.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.limiter != nil {
		app.limiter.Close()
	}
	closeDatabase(app.db, app.logger)
	app.logger.Info("application shutdown completed")
}
