// Package main implements the entry point for the vault API server, which
// stores users' documents under envelope encryption and enriches them with
// extracted text, insights and thumbnails in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"run a migration command (up|down|status|version) and exit")
	migrationsDir := flag.String("migrations-dir", "migrations",
		"directory holding the goose migration files")
	flag.Parse()

	if err := run(context.Background(), *migrateCmd, *migrationsDir); err != nil {
		log.Fatalf("vault-api: %v", err)
	}
}

// run loads configuration, wires the application and either executes a
// migration command or serves until a shutdown signal arrives.
func run(ctx context.Context, migrateCmd, migrationsDir string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)

	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer closeDatabase(db, logger)
		return runMigrations(db, migrateCmd, migrationsDir, logger)
	}

	// The schema must be current before any store touches it.
	if err := runMigrations(db, "up", migrationsDir, logger); err != nil {
		closeDatabase(db, logger)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		closeDatabase(db, logger)
		return err
	}

	// Run blocks until shutdown and handles cleanup on the way out.
	return app.Run(ctx)
}
