package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/api/shared"
	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/service"
)

// DefaultMaxUploadBytes bounds a single document upload.
const DefaultMaxUploadBytes = 100 << 20 // 100 MiB

// VaultService is the slice of the document service the handlers need.
type VaultService interface {
	Ingest(ctx context.Context, principal *domain.AuthenticatedPrincipal, upload service.Upload) (*domain.Document, error)
	Describe(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) (*domain.Document, error)
	Open(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) (*service.ContentRef, error)
	Delete(ctx context.Context, principal *domain.AuthenticatedPrincipal, docID uuid.UUID) error
}

// DocumentResponse is the client-facing view of a document record. The
// storage key, wrapped key and cipher metadata never leave the server.
type DocumentResponse struct {
	ID           string          `json:"id"`
	FileName     string          `json:"file_name"`
	MimeType     string          `json:"mime_type"`
	Status       string          `json:"status"`
	IsEncrypted  bool            `json:"is_encrypted"`
	HasThumbnail bool            `json:"has_thumbnail"`
	Insights     json.RawMessage `json:"insights,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DocumentHandler handles document-related HTTP requests.
type DocumentHandler struct {
	svc            VaultService
	tempDir        string
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler. tempDir holds upload staging
// files; empty means the OS default.
func NewDocumentHandler(svc VaultService, tempDir string, logger *slog.Logger) *DocumentHandler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &DocumentHandler{
		svc:            svc,
		tempDir:        tempDir,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
}

// UploadDocument handles POST /api/documents. The file arrives as the
// multipart field "file" and is staged to disk before ingestion; the service
// owns the staging file from then on and removes it on every path.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing identity")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing or oversized file field")
		return
	}
	defer func() { _ = file.Close() }()

	staged, size, err := stageToTemp(h.tempDir, file)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to receive upload", err)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	doc, err := h.svc.Ingest(r.Context(), &principal, service.Upload{
		FileName: header.Filename,
		MimeType: mimeType,
		TempPath: staged,
		Size:     size,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// 202: enrichment continues in the background.
	shared.RespondWithJSON(w, r, http.StatusAccepted, documentToResponse(doc))
}

// stageToTemp copies an incoming payload to a private temp file and reports
// its size. The service owns the file once ingestion starts.
func stageToTemp(dir string, src io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(dir, "vault-upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	size, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, fmt.Errorf("failed to stage upload: %w", err)
	}
	return f.Name(), size, nil
}

// GetDocument handles GET /api/documents/{id}.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	principal, docID, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Describe(r.Context(), &principal, docID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, documentToResponse(doc))
}

// DownloadDocument handles GET /api/documents/{id}/content. Unencrypted
// blobs on URL-capable backends redirect to a signed URL; everything else is
// proxied through the server, decrypting on the fly when needed.
func (h *DocumentHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	principal, docID, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	ref, err := h.svc.Open(r.Context(), &principal, docID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	defer func() { _ = ref.Close() }()

	if ref.SignedURL != "" {
		http.Redirect(w, r, ref.SignedURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", ref.Document.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref.Document.FileName))
	if ref.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", ref.Size))
	}
	if _, err := io.Copy(w, ref.Reader); err != nil {
		// Headers are already sent; all we can do is log.
		h.logger.Error("failed to stream document content",
			"document_id", docID,
			"error", err)
	}
}

// DeleteDocument handles DELETE /api/documents/{id}.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, docID, ok := h.requestIdentity(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), &principal, docID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestIdentity extracts the principal and the {id} route parameter,
// writing the error response itself when either is missing.
func (h *DocumentHandler) requestIdentity(w http.ResponseWriter, r *http.Request) (domain.AuthenticatedPrincipal, uuid.UUID, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing identity")
		return domain.AuthenticatedPrincipal{}, uuid.Nil, false
	}

	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid document ID")
		return domain.AuthenticatedPrincipal{}, uuid.Nil, false
	}
	return principal, docID, true
}

// documentToResponse converts a domain.Document to its API representation.
func documentToResponse(doc *domain.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:           doc.ID.String(),
		FileName:     doc.FileName,
		MimeType:     doc.MimeType,
		Status:       string(doc.Status),
		IsEncrypted:  doc.IsEncrypted,
		HasThumbnail: doc.ThumbnailKey != "",
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if doc.Insights != "" && json.Valid([]byte(doc.Insights)) {
		resp.Insights = json.RawMessage(doc.Insights)
	}
	return resp
}
