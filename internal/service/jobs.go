package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/queue"
	"github.com/hearthdocs/vault-api/internal/store"
)

// Job types for the enrichment pipeline.
const (
	JobTypeExtractText      = "extract_text"
	JobTypeGenerateInsights = "generate_insights"
	JobTypeRenderThumbnail  = "render_thumbnail"
)

// enrichmentPayload identifies the document a job works on. Handlers are
// idempotent: re-delivery overwrites the same columns with the same values.
type enrichmentPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	UserID     uuid.UUID `json:"user_id"`
}

// RegisterJobHandlers binds the enrichment handlers to their job types.
func (s *VaultService) RegisterJobHandlers(reg *queue.Registry) {
	reg.Register(JobTypeExtractText, s.handleExtractText)
	reg.Register(JobTypeGenerateInsights, s.handleGenerateInsights)
	reg.Register(JobTypeRenderThumbnail, s.handleRenderThumbnail)
}

// enqueueExtraction starts the enrichment chain for a new document. It is
// best-effort: a full queue never fails the ingest, the document just stays
// pending. A principal over its rate budget is demoted to low priority
// rather than skipped, since nothing else would ever re-attempt enrichment
// for the document.
func (s *VaultService) enqueueExtraction(ctx context.Context, principal *domain.AuthenticatedPrincipal, doc *domain.Document) {
	log := logger.FromContext(ctx)

	priority := queue.PriorityDefault
	if s.limiter != nil && !s.limiter.Allow(principal.RateKey()) {
		log.Warn("enrichment rate limited, demoting extraction to low priority",
			"principal", principal.RateKey(),
			"document_id", doc.ID)
		priority = queue.PriorityLow
	}

	if err := s.enqueue(ctx, JobTypeExtractText, doc, priority); err != nil {
		log.Warn("failed to enqueue extraction job",
			"document_id", doc.ID,
			"error", err)
	}
}

// enqueue submits one enrichment job for a document.
func (s *VaultService) enqueue(ctx context.Context, jobType string, doc *domain.Document, priority queue.Priority) error {
	payload, err := json.Marshal(enrichmentPayload{DocumentID: doc.ID, UserID: doc.UserID})
	if err != nil {
		return err
	}
	_, err = s.submitter.Enqueue(ctx, jobType, payload, priority)
	return err
}

// loadJobDocument resolves a job payload to its document. A deleted
// document resolves to (nil, nil): the job is obsolete, not failed.
func (s *VaultService) loadJobDocument(ctx context.Context, job *queue.Job) (*domain.Document, error) {
	var p enrichmentPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}

	doc, err := s.docs.GetDocument(ctx, p.DocumentID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			logger.FromContext(ctx).Info("document gone, dropping enrichment job",
				"document_id", p.DocumentID)
			return nil, nil
		}
		return nil, err
	}
	if doc.UserID != p.UserID {
		return nil, fmt.Errorf("job payload user mismatch for document %s", doc.ID)
	}
	return doc, nil
}

// handleExtractText pulls searchable text out of the document and, on
// success, fans out the insight and thumbnail jobs.
func (s *VaultService) handleExtractText(ctx context.Context, job *queue.Job) error {
	log := logger.FromContext(ctx)

	doc, err := s.loadJobDocument(ctx, job)
	if err != nil || doc == nil {
		return err
	}
	if s.extractor == nil {
		return nil
	}

	if err := doc.UpdateStatus(domain.DocumentStatusProcessing); err == nil {
		if err := s.docs.UpdateDocument(ctx, doc); err != nil {
			log.Warn("failed to mark document processing", "document_id", doc.ID, "error", err)
		}
	}

	ref, err := s.openEncryptedOrPlain(ctx, doc)
	if err != nil {
		return s.failDocument(ctx, doc, err)
	}
	defer func() { _ = ref.Close() }()

	text, err := s.extractor.Extract(ctx, ref.Reader, doc.MimeType)
	if err != nil {
		return s.failDocument(ctx, doc, fmt.Errorf("text extraction failed: %w", err))
	}

	doc.ExtractedText = text
	// The insight job finishes the document, but only when there is text to
	// analyze and a generator to run. Otherwise extraction is the last step.
	wantInsights := s.generator != nil && text != ""
	if !wantInsights {
		_ = doc.UpdateStatus(domain.DocumentStatusCompleted)
	}
	if err := s.docs.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist extracted text: %w", err)
	}

	if wantInsights {
		if err := s.enqueue(ctx, JobTypeGenerateInsights, doc, queue.PriorityDefault); err != nil {
			log.Warn("failed to enqueue insight job", "document_id", doc.ID, "error", err)
		}
	}
	if s.renderer != nil {
		if err := s.enqueue(ctx, JobTypeRenderThumbnail, doc, queue.PriorityLow); err != nil {
			log.Warn("failed to enqueue thumbnail job", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

// handleGenerateInsights derives the structured insights from the extracted
// text and completes the document.
func (s *VaultService) handleGenerateInsights(ctx context.Context, job *queue.Job) error {
	doc, err := s.loadJobDocument(ctx, job)
	if err != nil || doc == nil {
		return err
	}
	if s.generator == nil {
		return nil
	}
	if doc.ExtractedText == "" {
		return fmt.Errorf("document %s has no extracted text yet", doc.ID)
	}

	insights, err := s.generator.GenerateInsights(ctx, doc.ExtractedText, doc.UserID)
	if err != nil {
		return s.failDocument(ctx, doc, fmt.Errorf("insight generation failed: %w", err))
	}

	raw, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("failed to serialize insights: %w", err)
	}

	doc.Insights = string(raw)
	_ = doc.UpdateStatus(domain.DocumentStatusCompleted)
	if err := s.docs.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist insights: %w", err)
	}
	return nil
}

// handleRenderThumbnail produces and stores the document's preview image.
// Thumbnails are derived, low-resolution artifacts stored next to the
// ciphertext under a .thumb suffix.
func (s *VaultService) handleRenderThumbnail(ctx context.Context, job *queue.Job) error {
	doc, err := s.loadJobDocument(ctx, job)
	if err != nil || doc == nil {
		return err
	}
	if s.renderer == nil {
		return nil
	}

	ref, err := s.openEncryptedOrPlain(ctx, doc)
	if err != nil {
		return err
	}
	defer func() { _ = ref.Close() }()

	img, imgMime, err := s.renderer.RenderThumbnail(ctx, ref.Reader, doc.MimeType)
	if err != nil {
		return fmt.Errorf("thumbnail render failed: %w", err)
	}

	thumbKey := doc.StorageKey + ".thumb"
	if err := s.provider.Upload(ctx, thumbKey, bytes.NewReader(img), int64(len(img)), imgMime); err != nil {
		return fmt.Errorf("thumbnail upload failed: %w", err)
	}

	doc.ThumbnailKey = thumbKey
	if err := s.docs.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist thumbnail key: %w", err)
	}
	return nil
}

// openEncryptedOrPlain returns readable plaintext regardless of how the
// document is stored.
func (s *VaultService) openEncryptedOrPlain(ctx context.Context, doc *domain.Document) (*ContentRef, error) {
	if doc.IsEncrypted {
		return s.openEncrypted(ctx, doc)
	}

	f, cleanup, err := s.fetchToTemp(ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		cleanup()
		return nil, err
	}
	return &ContentRef{Document: doc, Reader: f, Size: info.Size(), cleanup: cleanup}, nil
}

// failDocument marks the document failed and returns the cause so the job
// still follows the retry path. A later successful attempt moves the
// document forward again.
func (s *VaultService) failDocument(ctx context.Context, doc *domain.Document, cause error) error {
	if err := doc.UpdateStatus(domain.DocumentStatusFailed); err == nil {
		if updErr := s.docs.UpdateDocument(ctx, doc); updErr != nil {
			logger.FromContext(ctx).Warn("failed to mark document failed",
				"document_id", doc.ID,
				"error", updErr)
		}
	}
	return cause
}
