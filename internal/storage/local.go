package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hearthdocs/vault-api/internal/domain"
)

// localBackend is the backend name used in errors.
const localBackend = "local"

// mimeSidecarSuffix is appended to the object path to persist the content
// type, which the filesystem cannot store natively.
const mimeSidecarSuffix = ".mime"

// LocalProvider stores objects as files under a base directory. Intended for
// single-node deployments and tests; it cannot issue signed URLs, so reads
// always proxy through the service.
type LocalProvider struct {
	baseDir string
}

// NewLocalProvider creates the filesystem backend rooted at baseDir,
// creating the directory if needed.
func NewLocalProvider(baseDir string) (*LocalProvider, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: local storage base directory is not set", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, newProviderError(localBackend, "init", err)
	}
	return &LocalProvider{baseDir: baseDir}, nil
}

// Type reports the backend class for persisted metadata.
func (p *LocalProvider) Type() domain.StorageType {
	return domain.StorageTypeLocal
}

// Upload writes the object atomically: into a temp file first, then renamed
// into place, so a crashed upload never leaves a readable partial object.
func (p *LocalProvider) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst, err := p.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return newProviderError(localBackend, "upload", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return newProviderError(localBackend, "upload", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return newProviderError(localBackend, "upload", err)
	}
	if err := tmp.Close(); err != nil {
		return newProviderError(localBackend, "upload", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return newProviderError(localBackend, "upload", err)
	}

	if err := os.WriteFile(dst+mimeSidecarSuffix, []byte(contentType), 0o640); err != nil {
		return newProviderError(localBackend, "upload", err)
	}
	return nil
}

// Download opens the object for reading.
func (p *LocalProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := p.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, newProviderError(localBackend, "download", err)
	}
	return f, nil
}

// SignedURL is unsupported on the filesystem backend.
func (p *LocalProvider) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", &ProviderError{Backend: localBackend, Operation: "signed_url", Err: ErrSignedURLUnsupported}
}

// Exists reports whether the object file is present.
func (p *LocalProvider) Exists(ctx context.Context, key string) (bool, error) {
	path, err := p.resolve(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, newProviderError(localBackend, "exists", err)
	}
	return true, nil
}

// Delete removes the object and its sidecar. Absent objects are a no-op.
func (p *LocalProvider) Delete(ctx context.Context, key string) error {
	path, err := p.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return newProviderError(localBackend, "delete", err)
	}
	if err := os.Remove(path + mimeSidecarSuffix); err != nil && !os.IsNotExist(err) {
		return newProviderError(localBackend, "delete", err)
	}
	return nil
}

// Metadata returns size, content type and modification time from the file
// and its sidecar.
func (p *LocalProvider) Metadata(ctx context.Context, key string) (*ObjectMetadata, error) {
	path, err := p.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, newProviderError(localBackend, "metadata", err)
	}

	// The sidecar is best effort; an object without one just has an empty
	// content type.
	contentType, _ := os.ReadFile(path + mimeSidecarSuffix)

	return &ObjectMetadata{
		Size:         info.Size(),
		ContentType:  string(contentType),
		LastModified: info.ModTime(),
	}, nil
}

// resolve maps an object key to an absolute path under baseDir and rejects
// keys that would escape it.
func (p *LocalProvider) resolve(key string) (string, error) {
	if key == "" {
		return "", newProviderError(localBackend, "resolve", errors.New("empty object key"))
	}

	full := filepath.Join(p.baseDir, filepath.FromSlash(key))
	base := filepath.Clean(p.baseDir) + string(os.PathSeparator)
	if !strings.HasPrefix(full, base) {
		return "", newProviderError(localBackend, "resolve", fmt.Errorf("object key escapes base directory: %q", key))
	}
	return full, nil
}
