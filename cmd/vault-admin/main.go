// Package main implements vault-admin, the operator CLI for key management
// and system validation. It talks to the same metadata store as the server
// but never to the HTTP surface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/keymanager"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/platform/postgres"
	"github.com/hearthdocs/vault-api/internal/service"
)

const usage = `Usage: vault-admin <command> [flags]

Commands:
  generate-master-key   print a fresh hex-encoded 256-bit master key
  test-encryption       run the key manager self-test with the configured key
  rotate-keys           re-wrap all document keys under a new master key
  validate-system       report encrypted vs unencrypted document counts
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate-master-key":
		err = generateMasterKey()
	case "test-encryption":
		err = testEncryption()
	case "rotate-keys":
		err = rotateKeys(os.Args[2:])
	case "validate-system":
		err = validateSystem()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vault-admin: %v\n", err)
		os.Exit(1)
	}
}

// generateMasterKey prints a new random master key to stdout and nothing
// else, so it can be piped straight into a secret store.
func generateMasterKey() error {
	key, err := keymanager.GenerateMasterKey()
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

// testEncryption verifies the configured master key with a round trip.
func testEncryption() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	keys, err := keymanager.New(cfg.Encryption.MasterKey)
	if err != nil {
		return err
	}
	if err := keys.SelfTest(); err != nil {
		return fmt.Errorf("self-test failed: %w", err)
	}
	fmt.Println("encryption self-test passed")
	return nil
}

// rotateKeys re-wraps every stored document key from the old master key to
// the new one and prints a per-document report of any failures.
func rotateKeys(args []string) error {
	fs := flag.NewFlagSet("rotate-keys", flag.ExitOnError)
	oldKey := fs.String("old", "", "current hex-encoded master key")
	newKey := fs.String("new", "", "replacement hex-encoded master key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *oldKey == "" || *newKey == "" {
		return fmt.Errorf("rotate-keys requires both -old and -new")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Server.LogLevel)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := logger.WithLogger(context.Background(), log)
	report, err := service.RotateMasterKey(ctx, postgres.NewPostgresDocumentStore(db), *oldKey, *newKey)
	if err != nil {
		return err
	}

	fmt.Printf("rotated: %d\nfailed:  %d\n", len(report.Succeeded), len(report.Failed))
	for _, failure := range report.Failed {
		fmt.Printf("  %s: %s\n", failure.DocumentID, failure.Reason)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d document keys were not rotated", len(report.Failed))
	}
	return nil
}

// validateSystem reports how many documents are stored encrypted. Every
// document should be; unencrypted rows predate encryption or indicate a bug.
func validateSystem() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	counts, err := postgres.NewPostgresDocumentStore(db).CountByEncryption(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("encrypted documents:   %d\nunencrypted documents: %d\n",
		counts.Encrypted, counts.Unencrypted)
	if counts.Unencrypted > 0 {
		return fmt.Errorf("%d documents are stored unencrypted", counts.Unencrypted)
	}
	fmt.Println("all documents encrypted")
	return nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
