package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/api/shared"
	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/service"
)

// emailRecipientPrefix routes inbound mail to a vault. The address local
// part carries the owner: upload+<user uuid>@<domain>.
const emailRecipientPrefix = "upload+"

// emailMemoryLimit bounds how much of a multipart message stays in memory
// before spilling to disk.
const emailMemoryLimit = 10 << 20

// EmailHandler accepts inbound email webhooks from the mail provider and
// turns attachments, or the message body when there are none, into vault
// documents. Webhook signature verification happens at the gateway, the
// same trust boundary that supplies identity headers everywhere else.
type EmailHandler struct {
	svc            VaultService
	tempDir        string
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewEmailHandler creates an EmailHandler. tempDir holds staging files;
// empty means the OS default.
func NewEmailHandler(svc VaultService, tempDir string, logger *slog.Logger) *EmailHandler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &EmailHandler{
		svc:            svc,
		tempDir:        tempDir,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
}

// EmailIngestResponse reports what an inbound message produced.
type EmailIngestResponse struct {
	Accepted  int                `json:"accepted"`
	Documents []DocumentResponse `json:"documents"`
}

// InboundEmail handles POST /api/email-ingest. The provider posts the
// parsed message as a form: recipient, sender, subject, body-plain,
// body-html, plus one file part per attachment.
func (h *EmailHandler) InboundEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(emailMemoryLimit); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Malformed message")
			return
		}
		if err := r.ParseForm(); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Malformed message")
			return
		}
	}

	userID, err := parseRecipient(r.FormValue("recipient"))
	if err != nil {
		// 406 tells the mail provider the address is unroutable and a
		// retry cannot succeed.
		shared.RespondWithError(w, r, http.StatusNotAcceptable, "Unroutable recipient")
		return
	}
	// The tier is unknown at this boundary; free carries the most
	// conservative enrichment budget.
	principal, err := domain.NewPrincipal(userID, domain.TierFree, uuid.Nil)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusNotAcceptable, "Unroutable recipient")
		return
	}

	var docs []DocumentResponse
	ingest := func(src io.Reader, fileName, mimeType string) bool {
		staged, size, err := stageToTemp(h.tempDir, src)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to receive message", err)
			return false
		}
		doc, err := h.svc.Ingest(r.Context(), &principal, service.Upload{
			FileName: fileName,
			MimeType: mimeType,
			TempPath: staged,
			Size:     size,
		})
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
			return false
		}
		docs = append(docs, documentToResponse(doc))
		return true
	}

	if r.MultipartForm != nil && len(r.MultipartForm.File) > 0 {
		for _, headers := range r.MultipartForm.File {
			for _, header := range headers {
				if !h.ingestAttachment(header, ingest) {
					return
				}
			}
		}
	} else {
		fileName, mimeType, body, ok := messageBody(r)
		if !ok {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Empty message")
			return
		}
		if !ingest(strings.NewReader(body), fileName, mimeType) {
			return
		}
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, EmailIngestResponse{
		Accepted:  len(docs),
		Documents: docs,
	})
}

// ingestAttachment opens one attachment part and feeds it through ingest.
// The ingest callback has already written the error response on failure.
func (h *EmailHandler) ingestAttachment(header *multipart.FileHeader, ingest func(io.Reader, string, string) bool) bool {
	f, err := header.Open()
	if err != nil {
		h.logger.Error("failed to open email attachment", "file_name", header.Filename, "error", err)
		return false
	}
	defer func() { _ = f.Close() }()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return ingest(f, header.Filename, mimeType)
}

// messageBody falls back to the message itself when the email carries no
// attachment. HTML is preferred so formatting survives.
func messageBody(r *http.Request) (fileName, mimeType, body string, ok bool) {
	subject := strings.TrimSpace(r.FormValue("subject"))
	if subject == "" {
		subject = "email"
	}
	if html := r.FormValue("body-html"); strings.TrimSpace(html) != "" {
		return subject + ".html", "text/html", html, true
	}
	if plain := r.FormValue("body-plain"); strings.TrimSpace(plain) != "" {
		return subject + ".txt", "text/plain", plain, true
	}
	return "", "", "", false
}

// parseRecipient extracts the vault owner from an inbound address of the
// form upload+<uuid>@<domain>.
func parseRecipient(addr string) (uuid.UUID, error) {
	local, _, found := strings.Cut(addr, "@")
	if !found {
		return uuid.Nil, fmt.Errorf("recipient %q has no domain part", addr)
	}
	rest, ok := strings.CutPrefix(strings.ToLower(local), emailRecipientPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("recipient %q does not address a vault", addr)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, fmt.Errorf("recipient %q carries no valid owner id: %w", addr, err)
	}
	return id, nil
}
