package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/domain"
)

// EncryptionCounts summarizes how many documents carry envelope encryption.
// Used by the admin validate-system operation.
type EncryptionCounts struct {
	Encrypted   int64
	Unencrypted int64
}

// DocumentStore defines the interface for document metadata persistence.
type DocumentStore interface {
	// CreateDocument saves a new document record to the store.
	// Returns ErrStorageKeyExists if the storage key is already in use.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by its ID.
	// Returns ErrDocumentNotFound if the document does not exist.
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// UpdateDocument persists changes to an existing document. Enrichment
	// handlers call this with upsert semantics on their result columns, so
	// a re-delivered job overwrites rather than duplicates.
	// Returns ErrDocumentNotFound if the document does not exist.
	UpdateDocument(ctx context.Context, doc *domain.Document) error

	// DeleteDocument removes a document record.
	// Returns ErrDocumentNotFound if the document does not exist.
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// ListEncryptedKeys returns the key-rotation view of every encrypted
	// document: its ID and wrapped document key.
	ListEncryptedKeys(ctx context.Context) ([]DocumentKey, error)

	// UpdateEncryptedKey replaces a document's wrapped key after rotation.
	UpdateEncryptedKey(ctx context.Context, id uuid.UUID, encryptedKey []byte) error

	// CountByEncryption tallies encrypted vs unencrypted documents.
	CountByEncryption(ctx context.Context) (EncryptionCounts, error)
}

// DocumentKey pairs a document with its wrapped per-document key.
type DocumentKey struct {
	DocumentID   uuid.UUID
	EncryptedKey []byte
}
