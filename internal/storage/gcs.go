package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/domain"
)

// gcsBackend is the backend name used in errors.
const gcsBackend = "gcs"

// GCSProvider stores objects in Google Cloud Storage. Credentials come from
// the ambient environment (workload identity or GOOGLE_APPLICATION_CREDENTIALS).
type GCSProvider struct {
	bucket *gcs.BucketHandle
}

// NewGCSProvider creates the GCS backend from configuration.
func NewGCSProvider(ctx context.Context, cfg config.GCSStorageConfig) (*GCSProvider, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gcs client: %v", domain.ErrConfiguration, err)
	}

	return &GCSProvider{bucket: client.Bucket(cfg.Bucket)}, nil
}

// Type reports the backend class for persisted metadata.
func (p *GCSProvider) Type() domain.StorageType {
	return domain.StorageTypeCloud
}

// Upload stores the object under key.
func (p *GCSProvider) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := p.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return newProviderError(gcsBackend, "upload", err)
	}
	if err := w.Close(); err != nil {
		return newProviderError(gcsBackend, "upload", err)
	}
	return nil
}

// Download returns the object bytes.
func (p *GCSProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := p.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, newProviderError(gcsBackend, "download", err)
	}
	return r, nil
}

// SignedURL generates a V4 signed GET URL valid for ttl.
func (p *GCSProvider) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", newProviderError(gcsBackend, "signed_url", err)
	}
	return u, nil
}

// Exists reports whether the object is present.
func (p *GCSProvider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, newProviderError(gcsBackend, "exists", err)
	}
	return true, nil
}

// Delete removes the object, treating an already-absent object as success.
func (p *GCSProvider) Delete(ctx context.Context, key string) error {
	err := p.bucket.Object(key).Delete(ctx)
	if err == nil || errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return newProviderError(gcsBackend, "delete", err)
}

// Metadata returns size, content type and modification time.
func (p *GCSProvider) Metadata(ctx context.Context, key string) (*ObjectMetadata, error) {
	attrs, err := p.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, newProviderError(gcsBackend, "metadata", err)
	}

	return &ObjectMetadata{
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
	}, nil
}
