package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/generation"
	"github.com/hearthdocs/vault-api/internal/keymanager"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/storage"
	"github.com/hearthdocs/vault-api/internal/store"
)

// Limiter is the admission check guarding enrichment capacity. Satisfied by
// ratelimit.Limiter.
type Limiter interface {
	Allow(principalID string) bool
}

// Upload describes one incoming file staged as plaintext on local disk.
// The service owns the staging file and removes it when ingestion finishes,
// whether or not it succeeded.
type Upload struct {
	FileName string
	MimeType string
	TempPath string
	Size     int64
}

// ContentRef is the result of opening a document: either a signed URL the
// client fetches directly, or a reader the service proxies. Callers must
// Close it.
type ContentRef struct {
	Document  *domain.Document
	SignedURL string
	Reader    io.ReadSeeker
	Size      int64

	cleanup func()
}

// Close releases any temp files behind the reader.
func (c *ContentRef) Close() error {
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
	return nil
}

// Config holds vault service tuning knobs.
type Config struct {
	// TempDir is where ciphertext staging and proxy-download files live.
	TempDir string

	// SignedURLTTL bounds the validity of issued signed URLs.
	SignedURLTTL time.Duration

	// ConvertTimeout is the hard ceiling on format conversion.
	ConvertTimeout time.Duration
}

// Deps are the collaborators of the vault service. Documents, Provider,
// Keys, Submitter and Logger are required; the rest are optional features.
type Deps struct {
	Documents store.DocumentStore
	Provider  storage.Provider
	Keys      *keymanager.KeyManager
	Submitter queue.Submitter
	Limiter   Limiter
	Converter Converter
	Extractor Extractor
	Generator generation.Generator
	Renderer  Renderer
	Logger    *slog.Logger
}

// VaultService orchestrates the document pipeline.
type VaultService struct {
	docs      store.DocumentStore
	provider  storage.Provider
	keys      *keymanager.KeyManager
	submitter queue.Submitter
	limiter   Limiter
	converter Converter
	extractor Extractor
	generator generation.Generator
	renderer  Renderer
	cfg       Config
	logger    *slog.Logger
}

// NewVaultService creates the orchestrator, validating required
// dependencies.
func NewVaultService(deps Deps, cfg Config) (*VaultService, error) {
	if deps.Documents == nil {
		return nil, errors.New("document store cannot be nil")
	}
	if deps.Provider == nil {
		return nil, errors.New("storage provider cannot be nil")
	}
	if deps.Keys == nil {
		return nil, errors.New("key manager cannot be nil")
	}
	if deps.Submitter == nil {
		return nil, errors.New("job submitter cannot be nil")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = 30 * time.Second
	}

	return &VaultService{
		docs:      deps.Documents,
		provider:  deps.Provider,
		keys:      deps.Keys,
		submitter: deps.Submitter,
		limiter:   deps.Limiter,
		converter: deps.Converter,
		extractor: deps.Extractor,
		generator: deps.Generator,
		renderer:  deps.Renderer,
		cfg:       cfg,
		logger:    deps.Logger,
	}, nil
}

// Ingest runs the upload pipeline: optional conversion, envelope
// encryption, blob upload, metadata persistence, and a best-effort
// enrichment enqueue. A failure after the blob upload deletes the uploaded
// object so no unreferenced ciphertext is left behind. Staging files are
// always removed.
func (s *VaultService) Ingest(ctx context.Context, principal *domain.AuthenticatedPrincipal, upload Upload) (*domain.Document, error) {
	log := logger.FromContext(ctx)

	tempFiles := []string{upload.TempPath}
	defer func() {
		for _, p := range tempFiles {
			if p != "" {
				_ = os.Remove(p)
			}
		}
	}()

	if err := principal.Validate(); err != nil {
		return nil, newVaultServiceError("ingest", "invalid principal", err)
	}

	doc, err := domain.NewDocument(principal.ID, upload.FileName, upload.MimeType)
	if err != nil {
		return nil, newVaultServiceError("ingest", "invalid upload", err)
	}

	srcPath := upload.TempPath
	if s.converter != nil {
		convCtx, cancel := context.WithTimeout(ctx, s.cfg.ConvertTimeout)
		outPath, outMime, convErr := s.converter.Convert(convCtx, srcPath, upload.MimeType)
		cancel()
		if convErr != nil {
			// Non-fatal: the original bytes are stored as-is.
			log.Warn("format conversion failed, storing original",
				"document_id", doc.ID,
				"mime_type", upload.MimeType,
				"error", convErr)
		} else {
			tempFiles = append(tempFiles, outPath)
			srcPath = outPath
			doc.MimeType = outMime
		}
	}

	docKey, err := s.keys.GenerateDocumentKey()
	if err != nil {
		return nil, newVaultServiceError("ingest", "failed to generate document key", err)
	}

	encPath := filepath.Join(s.cfg.TempDir, doc.ID.String()+".enc")
	meta, err := s.keys.EncryptFile(srcPath, encPath, docKey)
	if err != nil {
		return nil, newVaultServiceError("ingest", "encryption failed", err)
	}
	tempFiles = append(tempFiles, encPath)

	metaJSON, err := meta.Marshal()
	if err != nil {
		return nil, newVaultServiceError("ingest", "failed to serialize file metadata", err)
	}
	wrappedKey, err := s.keys.EncryptDocumentKey(docKey)
	if err != nil {
		return nil, newVaultServiceError("ingest", "failed to wrap document key", err)
	}

	doc.StorageKey = storage.ObjectKey(principal.ID, doc.ID, upload.FileName)
	doc.StorageType = s.provider.Type()
	doc.IsEncrypted = true
	doc.Algorithm = keymanager.AlgorithmAESGCM
	doc.EncryptedKey = wrappedKey
	doc.FileMeta = metaJSON

	if err := s.uploadFile(ctx, doc.StorageKey, encPath); err != nil {
		return nil, newVaultServiceError("ingest", "blob upload failed", err)
	}

	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		// Compensating cleanup: the record never existed, so the blob
		// must not either.
		if delErr := s.provider.Delete(ctx, doc.StorageKey); delErr != nil {
			log.Error("compensating blob delete failed, orphan object left behind",
				"document_id", doc.ID,
				"storage_key", doc.StorageKey,
				"error", delErr)
		}
		return nil, newVaultServiceError("ingest", "failed to persist document", err)
	}

	log.Info("document ingested",
		"document_id", doc.ID,
		"user_id", principal.ID,
		"storage_type", doc.StorageType,
		"size", meta.PlaintextSize)

	s.enqueueExtraction(ctx, principal, doc)
	return doc, nil
}

// Open returns the document content for its owner. Unencrypted documents
// prefer a signed URL; encrypted ones are decrypted and proxied. A record
// whose blob has vanished is deleted on the spot and reported as not found.
func (s *VaultService) Open(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) (*ContentRef, error) {
	log := logger.FromContext(ctx)

	doc, err := s.loadOwned(ctx, principal, docID)
	if err != nil {
		return nil, err
	}

	exists, err := s.provider.Exists(ctx, doc.StorageKey)
	if err != nil {
		return nil, newVaultServiceError("open", "storage check failed", err)
	}
	if !exists {
		// Self-heal: drop the orphan record so retries observe a clean
		// not-found instead of a broken document.
		if delErr := s.docs.DeleteDocument(ctx, doc.ID); delErr != nil {
			log.Error("failed to delete orphan document record",
				"document_id", doc.ID,
				"error", delErr)
		} else {
			log.Warn("deleted orphan document record",
				"document_id", doc.ID,
				"storage_key", doc.StorageKey)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDocumentNotFound, domain.ErrOrphanRecord)
	}

	if !doc.IsEncrypted {
		if url, urlErr := s.provider.SignedURL(ctx, doc.StorageKey, s.cfg.SignedURLTTL); urlErr == nil {
			return &ContentRef{Document: doc, SignedURL: url}, nil
		}
		// Backends without signed URLs fall back to proxying bytes.
		f, cleanup, err := s.fetchToTemp(ctx, doc.StorageKey)
		if err != nil {
			return nil, newVaultServiceError("open", "download failed", err)
		}
		info, err := f.Stat()
		if err != nil {
			cleanup()
			return nil, newVaultServiceError("open", "stat failed", err)
		}
		return &ContentRef{Document: doc, Reader: f, Size: info.Size(), cleanup: cleanup}, nil
	}

	return s.openEncrypted(ctx, doc)
}

// Describe returns the document record for its owner.
func (s *VaultService) Describe(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) (*domain.Document, error) {
	return s.loadOwned(ctx, principal, docID)
}

// Delete removes the blob first and the record second, so a half-finished
// delete leaves a record that a later retry can still resolve.
func (s *VaultService) Delete(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) error {
	doc, err := s.loadOwned(ctx, principal, docID)
	if err != nil {
		return err
	}

	if err := s.provider.Delete(ctx, doc.StorageKey); err != nil {
		return newVaultServiceError("delete", "failed to delete blob", err)
	}
	if doc.ThumbnailKey != "" {
		if err := s.provider.Delete(ctx, doc.ThumbnailKey); err != nil {
			logger.FromContext(ctx).Warn("failed to delete thumbnail blob",
				"document_id", doc.ID,
				"thumbnail_key", doc.ThumbnailKey,
				"error", err)
		}
	}

	if err := s.docs.DeleteDocument(ctx, docID); err != nil {
		return newVaultServiceError("delete", "failed to delete record", err)
	}
	return nil
}

// loadOwned fetches a document and enforces ownership. A foreign document
// is reported as not found so existence does not leak across users.
func (s *VaultService) loadOwned(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) (*domain.Document, error) {
	if err := principal.Validate(); err != nil {
		return nil, newVaultServiceError("load", "invalid principal", err)
	}

	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, docID)
		}
		return nil, newVaultServiceError("load", "document lookup failed", err)
	}
	if doc.UserID != principal.ID {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, docID)
	}
	return doc, nil
}

// openEncrypted stages the ciphertext locally and returns a seekable
// decrypting reader over it.
func (s *VaultService) openEncrypted(ctx context.Context, doc *domain.Document) (*ContentRef, error) {
	meta, err := keymanager.UnmarshalFileMeta(doc.FileMeta)
	if err != nil {
		return nil, newVaultServiceError("open", "corrupt file metadata", err)
	}
	docKey, err := s.keys.DecryptDocumentKey(doc.EncryptedKey)
	if err != nil {
		return nil, newVaultServiceError("open", "failed to unwrap document key", err)
	}

	f, cleanup, err := s.fetchToTemp(ctx, doc.StorageKey)
	if err != nil {
		return nil, newVaultServiceError("open", "download failed", err)
	}

	reader, err := s.keys.NewDecryptReader(f, docKey, meta)
	if err != nil {
		cleanup()
		return nil, newVaultServiceError("open", "failed to open decrypt reader", err)
	}

	return &ContentRef{
		Document: doc,
		Reader:   reader,
		Size:     reader.Size(),
		cleanup:  cleanup,
	}, nil
}

// fetchToTemp downloads a blob into a temp file opened for reading. The
// returned cleanup closes and removes it.
func (s *VaultService) fetchToTemp(ctx context.Context, key string) (*os.File, func(), error) {
	rc, err := s.provider.Download(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rc.Close() }()

	f, err := os.CreateTemp(s.cfg.TempDir, "vault-open-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}

	if _, err := io.Copy(f, rc); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}
	return f, cleanup, nil
}

// uploadFile streams a staged file into the provider.
func (s *VaultService) uploadFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	// Ciphertext is opaque regardless of the original MIME type.
	return s.provider.Upload(ctx, key, f, info.Size(), "application/octet-stream")
}
