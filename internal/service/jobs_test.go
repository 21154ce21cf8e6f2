package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/generation"
	"github.com/hearthdocs/vault-api/internal/queue"
)

type extractorFunc func(ctx context.Context, r io.Reader, mimeType string) (string, error)

func (f extractorFunc) Extract(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	return f(ctx, r, mimeType)
}

type generatorFunc func(ctx context.Context, text string, userID uuid.UUID) (*generation.DocumentInsights, error)

func (f generatorFunc) GenerateInsights(ctx context.Context, text string, userID uuid.UUID) (*generation.DocumentInsights, error) {
	return f(ctx, text, userID)
}

type rendererFunc func(ctx context.Context, r io.Reader, mimeType string) ([]byte, string, error)

func (f rendererFunc) RenderThumbnail(ctx context.Context, r io.Reader, mimeType string) ([]byte, string, error) {
	return f(ctx, r, mimeType)
}

func passthroughExtractor(t *testing.T) extractorFunc {
	t.Helper()
	return func(_ context.Context, r io.Reader, _ string) (string, error) {
		raw, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

func staticGenerator(insights *generation.DocumentInsights) generatorFunc {
	return func(context.Context, string, uuid.UUID) (*generation.DocumentInsights, error) {
		return insights, nil
	}
}

func enrichmentJob(t *testing.T, jobType string, doc *domain.Document) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(enrichmentPayload{DocumentID: doc.ID, UserID: doc.UserID})
	require.NoError(t, err)
	job, err := queue.NewJob(jobType, payload, queue.PriorityDefault, 3)
	require.NoError(t, err)
	return job
}

func TestExtractTextFansOut(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Extractor = passthroughExtractor(t)
		d.Generator = staticGenerator(&generation.DocumentInsights{Summary: "a tax return"})
		d.Renderer = rendererFunc(func(context.Context, io.Reader, string) ([]byte, string, error) {
			return []byte("png"), "image/png", nil
		})
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("the plaintext body")))
	require.NoError(t, err)

	err = fx.svc.handleExtractText(ctx, enrichmentJob(t, JobTypeExtractText, doc))
	require.NoError(t, err)

	stored, err := fx.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "the plaintext body", stored.ExtractedText)
	assert.Equal(t, domain.DocumentStatusProcessing, stored.Status,
		"document stays processing until the insight job finishes")

	assert.Equal(t,
		[]string{JobTypeExtractText, JobTypeGenerateInsights, JobTypeRenderThumbnail},
		fx.submitter.types())
}

func TestExtractTextCompletesWithoutGenerator(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Extractor = passthroughExtractor(t)
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("searchable text")))
	require.NoError(t, err)

	require.NoError(t, fx.svc.handleExtractText(ctx, enrichmentJob(t, JobTypeExtractText, doc)))

	stored, err := fx.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusCompleted, stored.Status)
	assert.Equal(t, "searchable text", stored.ExtractedText)
	assert.Equal(t, []string{JobTypeExtractText}, fx.submitter.types(), "no insight job to fan out")
}

func TestExtractTextFailureMarksDocumentFailed(t *testing.T) {
	boom := errors.New("ocr crashed")
	fx := newFixture(t, func(d *Deps) {
		d.Extractor = extractorFunc(func(context.Context, io.Reader, string) (string, error) {
			return "", boom
		})
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("body")))
	require.NoError(t, err)

	err = fx.svc.handleExtractText(ctx, enrichmentJob(t, JobTypeExtractText, doc))
	assert.ErrorIs(t, err, boom, "the cause propagates so the job retries")

	stored, err := fx.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, stored.Status)
}

func TestGenerateInsightsCompletesDocument(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Extractor = passthroughExtractor(t)
		d.Generator = staticGenerator(&generation.DocumentInsights{
			Summary:  "2025 household tax return",
			Category: "tax",
			Keywords: []string{"tax", "2025"},
		})
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("tax return body")))
	require.NoError(t, err)
	require.NoError(t, fx.svc.handleExtractText(ctx, enrichmentJob(t, JobTypeExtractText, doc)))

	require.NoError(t, fx.svc.handleGenerateInsights(ctx, enrichmentJob(t, JobTypeGenerateInsights, doc)))

	stored, err := fx.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusCompleted, stored.Status)

	var insights generation.DocumentInsights
	require.NoError(t, json.Unmarshal([]byte(stored.Insights), &insights))
	assert.Equal(t, "2025 household tax return", insights.Summary)
	assert.Equal(t, "tax", insights.Category)
}

func TestGenerateInsightsRequiresExtractedText(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Generator = staticGenerator(&generation.DocumentInsights{Summary: "x"})
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("body")))
	require.NoError(t, err)

	err = fx.svc.handleGenerateInsights(ctx, enrichmentJob(t, JobTypeGenerateInsights, doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extracted text")
}

func TestRenderThumbnailStoresPreview(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Renderer = rendererFunc(func(context.Context, io.Reader, string) ([]byte, string, error) {
			return []byte("fake-png-bytes"), "image/png", nil
		})
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("rendered content")))
	require.NoError(t, err)

	require.NoError(t, fx.svc.handleRenderThumbnail(ctx, enrichmentJob(t, JobTypeRenderThumbnail, doc)))

	stored, err := fx.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.StorageKey+".thumb", stored.ThumbnailKey)

	ok, err := fx.provider.Exists(ctx, stored.ThumbnailKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandlersDropDeletedDocuments(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Extractor = passthroughExtractor(t)
	})

	gone := &domain.Document{ID: uuid.New(), UserID: fx.principal.ID}
	err := fx.svc.handleExtractText(context.Background(), enrichmentJob(t, JobTypeExtractText, gone))
	assert.NoError(t, err, "a deleted document makes the job obsolete, not failed")
}

func TestHandlersRejectUserMismatch(t *testing.T) {
	fx := newFixture(t, func(d *Deps) {
		d.Extractor = passthroughExtractor(t)
	})
	ctx := context.Background()

	doc, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("private")))
	require.NoError(t, err)

	forged := *doc
	forged.UserID = uuid.New()
	err = fx.svc.handleExtractText(ctx, enrichmentJob(t, JobTypeExtractText, &forged))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user mismatch")
}

func TestRegisterJobHandlers(t *testing.T) {
	fx := newFixture(t, nil)
	reg := queue.NewRegistry()
	fx.svc.RegisterJobHandlers(reg)

	for _, jobType := range []string{JobTypeExtractText, JobTypeGenerateInsights, JobTypeRenderThumbnail} {
		_, err := reg.Resolve(jobType)
		assert.NoError(t, err, jobType)
	}
}
