package insight

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/generation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewInsightGeneratorValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil logger rejected", func(t *testing.T) {
		_, err := NewInsightGenerator(ctx, nil, config.InsightConfig{
			GeminiAPIKey: "key", ModelName: "gemini-2.0-flash",
		})
		assert.Error(t, err)
	})

	t.Run("missing API key rejected", func(t *testing.T) {
		_, err := NewInsightGenerator(ctx, discardLogger(), config.InsightConfig{
			ModelName: "gemini-2.0-flash",
		})
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})

	t.Run("missing model name rejected", func(t *testing.T) {
		_, err := NewInsightGenerator(ctx, discardLogger(), config.InsightConfig{
			GeminiAPIKey: "key",
		})
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})
}

func newPromptOnlyGenerator(t *testing.T) *InsightGenerator {
	t.Helper()
	tmpl, err := template.New("insights").Parse(promptTemplateText)
	require.NoError(t, err)
	return &InsightGenerator{
		logger:         discardLogger(),
		promptTemplate: tmpl,
	}
}

func TestCreatePrompt(t *testing.T) {
	g := newPromptOnlyGenerator(t)

	t.Run("includes document text", func(t *testing.T) {
		prompt, err := g.createPrompt(context.Background(), "Policy number 12345 renews 2027-01-01")
		require.NoError(t, err)
		assert.Contains(t, prompt, "Policy number 12345")
		assert.Contains(t, prompt, `"expiry_hint"`)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		_, err := g.createPrompt(context.Background(), "")
		assert.ErrorIs(t, err, generation.ErrEmptyText)
	})

	t.Run("oversized text truncated", func(t *testing.T) {
		prompt, err := g.createPrompt(context.Background(), strings.Repeat("a", maxPromptChars*2))
		require.NoError(t, err)
		assert.Less(t, len(prompt), maxPromptChars+len(promptTemplateText))
	})
}

func TestParseInsights(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		got, err := parseInsights(`{"summary":"Home insurance policy","category":"insurance","keywords":["policy"],"expiry_hint":"2027-01-01"}`)
		require.NoError(t, err)
		assert.Equal(t, "insurance", got.Category)
		assert.Equal(t, "2027-01-01", got.ExpiryHint)
	})

	t.Run("markdown fenced JSON", func(t *testing.T) {
		got, err := parseInsights("```json\n{\"summary\":\"Receipt\",\"category\":\"receipts\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "Receipt", got.Summary)
	})

	t.Run("missing category defaults to other", func(t *testing.T) {
		got, err := parseInsights(`{"summary":"Something"}`)
		require.NoError(t, err)
		assert.Equal(t, "other", got.Category)
	})

	t.Run("missing summary rejected", func(t *testing.T) {
		_, err := parseInsights(`{"category":"legal"}`)
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})

	t.Run("non-JSON rejected", func(t *testing.T) {
		_, err := parseInsights("I could not analyze this document.")
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})
}
