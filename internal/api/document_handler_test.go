package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdocs/vault-api/internal/api/middleware"
	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/service"
)

// fakeVaultService scripts per-method results for handler tests.
type fakeVaultService struct {
	ingestDoc   *domain.Document
	ingestErr   error
	describeDoc *domain.Document
	describeErr error
	openRef     *service.ContentRef
	openErr     error
	deleteErr   error

	lastUpload    service.Upload
	uploads       []service.Upload
	lastPrincipal domain.AuthenticatedPrincipal
}

func (f *fakeVaultService) Ingest(_ context.Context, principal *domain.AuthenticatedPrincipal, upload service.Upload) (*domain.Document, error) {
	f.lastUpload = upload
	f.uploads = append(f.uploads, upload)
	f.lastPrincipal = *principal
	return f.ingestDoc, f.ingestErr
}

func (f *fakeVaultService) Describe(context.Context, *domain.AuthenticatedPrincipal, uuid.UUID) (*domain.Document, error) {
	return f.describeDoc, f.describeErr
}

func (f *fakeVaultService) Open(context.Context, *domain.AuthenticatedPrincipal, uuid.UUID) (*service.ContentRef, error) {
	return f.openRef, f.openErr
}

func (f *fakeVaultService) Delete(context.Context, *domain.AuthenticatedPrincipal, uuid.UUID) error {
	return f.deleteErr
}

func testDocument(t *testing.T) *domain.Document {
	t.Helper()
	doc, err := domain.NewDocument(uuid.New(), "statement.pdf", "application/pdf")
	require.NoError(t, err)
	return doc
}

func newTestRouter(t *testing.T, svc VaultService) http.Handler {
	t.Helper()
	h := NewDocumentHandler(svc, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Group(func(r chi.Router) {
		r.Use(middleware.PrincipalMiddleware)
		r.Post("/api/documents", h.UploadDocument)
		r.Get("/api/documents/{id}", h.GetDocument)
		r.Get("/api/documents/{id}/content", h.DownloadDocument)
		r.Delete("/api/documents/{id}", h.DeleteDocument)
	})
	return r
}

func withIdentity(req *http.Request, userID uuid.UUID) *http.Request {
	req.Header.Set(middleware.HeaderUserID, userID.String())
	req.Header.Set(middleware.HeaderTier, string(domain.TierPro))
	return req
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	t.Run("accepts a multipart upload", func(t *testing.T) {
		svc := &fakeVaultService{ingestDoc: testDocument(t)}
		router := newTestRouter(t, svc)

		body, contentType := multipartUpload(t, "file", "statement.pdf", []byte("pdf bytes"))
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/documents", body), uuid.New())
		req.Header.Set("Content-Type", contentType)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), svc.ingestDoc.ID.String())
		assert.Equal(t, "statement.pdf", svc.lastUpload.FileName)
		assert.Equal(t, int64(len("pdf bytes")), svc.lastUpload.Size)
	})

	t.Run("rejects a request without the file field", func(t *testing.T) {
		router := newTestRouter(t, &fakeVaultService{})

		body, contentType := multipartUpload(t, "attachment", "x.pdf", []byte("x"))
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/documents", body), uuid.New())
		req.Header.Set("Content-Type", contentType)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a request without identity headers", func(t *testing.T) {
		router := newTestRouter(t, &fakeVaultService{})

		body, contentType := multipartUpload(t, "file", "x.pdf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
		req.Header.Set("Content-Type", contentType)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("maps a full queue to 429", func(t *testing.T) {
		svc := &fakeVaultService{ingestErr: queue.ErrQueueFull}
		router := newTestRouter(t, svc)

		body, contentType := multipartUpload(t, "file", "x.pdf", []byte("x"))
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/documents", body), uuid.New())
		req.Header.Set("Content-Type", contentType)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestGetDocument(t *testing.T) {
	t.Run("returns the document view", func(t *testing.T) {
		doc := testDocument(t)
		doc.Insights = `{"summary":"a bank statement"}`
		router := newTestRouter(t, &fakeVaultService{describeDoc: doc})

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.ID.String(), nil), doc.UserID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"a bank statement"`)
		assert.NotContains(t, rec.Body.String(), "storage_key", "storage details never leave the server")
	})

	t.Run("maps not found", func(t *testing.T) {
		router := newTestRouter(t, &fakeVaultService{describeErr: domain.ErrDocumentNotFound})

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/documents/"+uuid.NewString(), nil), uuid.New())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Document not found")
	})

	t.Run("rejects a malformed id", func(t *testing.T) {
		router := newTestRouter(t, &fakeVaultService{})

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/documents/not-a-uuid", nil), uuid.New())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDownloadDocument(t *testing.T) {
	t.Run("redirects to a signed URL", func(t *testing.T) {
		doc := testDocument(t)
		router := newTestRouter(t, &fakeVaultService{openRef: &service.ContentRef{
			Document:  doc,
			SignedURL: "https://blobs.example.com/signed/abc",
		}})

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.ID.String()+"/content", nil), doc.UserID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://blobs.example.com/signed/abc", rec.Header().Get("Location"))
	})

	t.Run("proxies decrypted bytes", func(t *testing.T) {
		doc := testDocument(t)
		content := "decrypted document body"
		router := newTestRouter(t, &fakeVaultService{openRef: &service.ContentRef{
			Document: doc,
			Reader:   strings.NewReader(content),
			Size:     int64(len(content)),
		}})

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.ID.String()+"/content", nil), doc.UserID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, content, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "statement.pdf")
	})
}

func TestDeleteDocument(t *testing.T) {
	router := newTestRouter(t, &fakeVaultService{})

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/documents/"+uuid.NewString(), nil), uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDocumentToResponse(t *testing.T) {
	doc := testDocument(t)
	doc.ThumbnailKey = "users/x/doc.thumb"
	doc.CreatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	resp := documentToResponse(doc)
	assert.True(t, resp.HasThumbnail)
	assert.Empty(t, resp.Insights, "non-JSON insights are omitted")
	assert.Equal(t, "pending", resp.Status)
}
