package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/store"
)

// PostgresDocumentStore implements the store.DocumentStore interface using PostgreSQL.
type PostgresDocumentStore struct {
	db store.DBTX
}

// Verify PostgresDocumentStore implements store.DocumentStore.
var _ store.DocumentStore = (*PostgresDocumentStore)(nil)

// NewPostgresDocumentStore creates a new PostgresDocumentStore.
func NewPostgresDocumentStore(db store.DBTX) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// documentColumns is the canonical column list shared by every SELECT.
const documentColumns = `id, user_id, file_name, mime_type, storage_key, storage_type,
	is_encrypted, algorithm, encrypted_key, file_meta, status,
	extracted_text, insights, thumbnail_key, created_at, updated_at`

// CreateDocument saves a new document record.
func (s *PostgresDocumentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	log := logger.FromContext(ctx)

	if err := doc.Validate(); err != nil {
		return store.NewStoreError("document", "create", "validation failed", err)
	}

	query := `
		INSERT INTO documents (id, user_id, file_name, mime_type, storage_key, storage_type,
			is_encrypted, algorithm, encrypted_key, file_meta, status,
			extracted_text, insights, thumbnail_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.MimeType,
		doc.StorageKey,
		doc.StorageType,
		doc.IsEncrypted,
		doc.Algorithm,
		doc.EncryptedKey,
		doc.FileMeta,
		doc.Status,
		doc.ExtractedText,
		doc.Insights,
		doc.ThumbnailKey,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrStorageKeyExists, err)
		}
		log.Error("failed to create document",
			"document_id", doc.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetDocument retrieves a document by its ID.
func (s *PostgresDocumentStore) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
		}
		return nil, MapError(err)
	}
	return doc, nil
}

// UpdateDocument persists changes to an existing document. The enrichment
// columns are written wholesale, which gives re-delivered jobs upsert
// semantics: the latest write wins, nothing is appended twice.
func (s *PostgresDocumentStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	log := logger.FromContext(ctx)

	if err := doc.Validate(); err != nil {
		return store.NewStoreError("document", "update", "validation failed", err)
	}

	query := `
		UPDATE documents
		SET file_name = $2, mime_type = $3, storage_key = $4, storage_type = $5,
			is_encrypted = $6, algorithm = $7, encrypted_key = $8, file_meta = $9,
			status = $10, extracted_text = $11, insights = $12, thumbnail_key = $13,
			updated_at = $14
		WHERE id = $1
	`

	doc.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.FileName,
		doc.MimeType,
		doc.StorageKey,
		doc.StorageType,
		doc.IsEncrypted,
		doc.Algorithm,
		doc.EncryptedKey,
		doc.FileMeta,
		doc.Status,
		doc.ExtractedText,
		doc.Insights,
		doc.ThumbnailKey,
		doc.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update document",
			"document_id", doc.ID,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "document"); err != nil {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, doc.ID)
	}
	return nil
}

// DeleteDocument removes a document record.
func (s *PostgresDocumentStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "document"); err != nil {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	return nil
}

// ListEncryptedKeys returns the ID and wrapped key of every encrypted
// document, the working set for master key rotation.
func (s *PostgresDocumentStore) ListEncryptedKeys(ctx context.Context) ([]store.DocumentKey, error) {
	query := `
		SELECT id, encrypted_key
		FROM documents
		WHERE is_encrypted = TRUE
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var keys []store.DocumentKey
	for rows.Next() {
		var k store.DocumentKey
		if err := rows.Scan(&k.DocumentID, &k.EncryptedKey); err != nil {
			return nil, fmt.Errorf("failed to scan document key row: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document key rows: %w", err)
	}
	return keys, nil
}

// UpdateEncryptedKey replaces a document's wrapped key after rotation.
func (s *PostgresDocumentStore) UpdateEncryptedKey(ctx context.Context, id uuid.UUID, encryptedKey []byte) error {
	query := `UPDATE documents SET encrypted_key = $2, updated_at = $3 WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, encryptedKey, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "document"); err != nil {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	return nil
}

// CountByEncryption tallies encrypted vs unencrypted documents.
func (s *PostgresDocumentStore) CountByEncryption(ctx context.Context) (store.EncryptionCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_encrypted),
			COUNT(*) FILTER (WHERE NOT is_encrypted)
		FROM documents
	`

	var counts store.EncryptionCounts
	err := s.db.QueryRowContext(ctx, query).Scan(&counts.Encrypted, &counts.Unencrypted)
	if err != nil {
		return store.EncryptionCounts{}, MapError(err)
	}
	return counts, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument maps one row onto a domain.Document.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var algorithm, extractedText, insights, thumbnailKey sql.NullString

	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.MimeType,
		&doc.StorageKey,
		&doc.StorageType,
		&doc.IsEncrypted,
		&algorithm,
		&doc.EncryptedKey,
		&doc.FileMeta,
		&doc.Status,
		&extractedText,
		&insights,
		&thumbnailKey,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Algorithm = algorithm.String
	doc.ExtractedText = extractedText.String
	doc.Insights = insights.String
	doc.ThumbnailKey = thumbnailKey.String
	return &doc, nil
}
