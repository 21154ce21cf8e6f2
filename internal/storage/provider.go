// Package storage abstracts the blob backends that hold encrypted document
// bytes. Providers are interchangeable behind the Provider interface; the
// backend is selected once from configuration at startup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/domain"
)

// Common provider errors used across all backend implementations.
var (
	// ErrObjectNotFound is returned when the requested object does not exist.
	ErrObjectNotFound = errors.New("storage object not found")

	// ErrSignedURLUnsupported is returned by backends that cannot issue
	// time-limited direct-access URLs (e.g. the local filesystem backend).
	// Callers fall back to proxying bytes through the service.
	ErrSignedURLUnsupported = errors.New("signed URLs not supported by this backend")
)

// ObjectMetadata describes a stored object without fetching its bytes.
type ObjectMetadata struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Provider is the capability set every storage backend implements. Delete is
// idempotent: deleting an absent object is not an error, so compensating
// cleanup can always run safely.
type Provider interface {
	// Upload stores the object under key, replacing any existing object.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Download returns the object bytes. The caller owns closing the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// SignedURL returns a time-limited direct-access URL, or
	// ErrSignedURLUnsupported.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Absent objects are a no-op.
	Delete(ctx context.Context, key string) error

	// Metadata returns size, content type and modification time.
	Metadata(ctx context.Context, key string) (*ObjectMetadata, error)

	// Type reports whether this backend is local or cloud, for the
	// persisted encryption metadata.
	Type() domain.StorageType
}

// ProviderError wraps a backend failure with the backend name and operation,
// in the same shape the store layer uses for database failures.
type ProviderError struct {
	Backend   string // The backend name (e.g. "s3", "local")
	Operation string // The operation that failed (e.g. "upload", "delete")
	Err       error  // Original error
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s operation on %s backend failed: %v", e.Operation, e.Backend, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// newProviderError creates a ProviderError that also carries the
// domain.ErrStorage sentinel so callers can classify it without knowing the
// backend.
func newProviderError(backend, operation string, err error) *ProviderError {
	return &ProviderError{
		Backend:   backend,
		Operation: operation,
		Err:       fmt.Errorf("%w: %w", domain.ErrStorage, err),
	}
}

// New constructs the Provider selected by configuration.
func New(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalProvider(cfg.Local.BaseDir)
	case "s3":
		return NewS3Provider(cfg.S3)
	case "gcs":
		return NewGCSProvider(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", domain.ErrConfiguration, cfg.Backend)
	}
}
