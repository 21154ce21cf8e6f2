package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the enrichment state of a document.
type DocumentStatus string

// Possible document status values
const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// StorageType identifies which storage backend holds a document's bytes.
type StorageType string

// Possible storage type values
const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCloud StorageType = "cloud"
)

// Common validation errors for Document
var (
	ErrEmptyDocumentID      = errors.New("document ID cannot be empty")
	ErrEmptyDocumentUserID  = errors.New("document user ID cannot be empty")
	ErrEmptyDocumentName    = errors.New("document file name cannot be empty")
	ErrEmptyStorageKey      = errors.New("document storage key cannot be empty")
	ErrInvalidStorageType   = errors.New("invalid storage type")
	ErrInvalidDocumentState = errors.New("invalid document status")
)

// Document represents a single uploaded file owned by a user. The stored
// bytes are always the ciphertext; EncryptedKey is the document key wrapped
// under the master key, and FileMeta carries the chunk layout needed to
// reconstruct byte ranges.
type Document struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	FileName     string         `json:"file_name"`
	MimeType     string         `json:"mime_type"`
	StorageKey   string         `json:"storage_key"`
	StorageType  StorageType    `json:"storage_type"`
	IsEncrypted  bool           `json:"is_encrypted"`
	Algorithm    string         `json:"algorithm"`
	EncryptedKey []byte         `json:"-"`
	FileMeta     []byte         `json:"-"`
	Status       DocumentStatus `json:"status"`

	// Enrichment results, populated asynchronously by job handlers.
	ExtractedText string `json:"extracted_text,omitempty"`
	Insights      string `json:"insights,omitempty"`
	ThumbnailKey  string `json:"thumbnail_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EncryptionMetadata is the persisted JSON shape describing how and where a
// document is stored. Immutable after creation except during migration.
type EncryptionMetadata struct {
	StorageType StorageType `json:"storageType"`
	StorageKey  string      `json:"storageKey"`
	Encrypted   bool        `json:"encrypted"`
	Algorithm   string      `json:"algorithm"`
}

// NewDocument creates a new Document owned by the given user.
// It generates a new UUID for the document ID, sets the status to pending,
// and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewDocument(userID uuid.UUID, fileName, mimeType string) (*Document, error) {
	doc := &Document{
		ID:        uuid.New(),
		UserID:    userID,
		FileName:  fileName,
		MimeType:  mimeType,
		Status:    DocumentStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := doc.validateIdentity(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks if the Document has valid data.
// Returns an error if any field fails validation.
func (d *Document) Validate() error {
	if err := d.validateIdentity(); err != nil {
		return err
	}

	if d.StorageKey == "" {
		return ErrEmptyStorageKey
	}

	if !isValidStorageType(d.StorageType) {
		return ErrInvalidStorageType
	}

	if !isValidDocumentStatus(d.Status) {
		return ErrInvalidDocumentState
	}

	return nil
}

// validateIdentity checks the fields known before the document is stored.
func (d *Document) validateIdentity() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDocumentID
	}

	if d.UserID == uuid.Nil {
		return ErrEmptyDocumentUserID
	}

	if d.FileName == "" {
		return ErrEmptyDocumentName
	}

	return nil
}

// UpdateStatus updates the document's status and the UpdatedAt timestamp.
// Returns an error if the new status is invalid.
func (d *Document) UpdateStatus(status DocumentStatus) error {
	if !isValidDocumentStatus(status) {
		return ErrInvalidDocumentState
	}

	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Metadata returns the persisted encryption metadata for this document.
func (d *Document) Metadata() EncryptionMetadata {
	return EncryptionMetadata{
		StorageType: d.StorageType,
		StorageKey:  d.StorageKey,
		Encrypted:   d.IsEncrypted,
		Algorithm:   d.Algorithm,
	}
}

// isValidDocumentStatus checks if the given status is a valid DocumentStatus.
func isValidDocumentStatus(status DocumentStatus) bool {
	switch status {
	case DocumentStatusPending, DocumentStatusProcessing,
		DocumentStatusCompleted, DocumentStatusFailed:
		return true
	default:
		return false
	}
}

// isValidStorageType checks if the given type is a valid StorageType.
func isValidStorageType(t StorageType) bool {
	switch t {
	case StorageTypeLocal, StorageTypeCloud:
		return true
	default:
		return false
	}
}
