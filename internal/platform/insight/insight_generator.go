// Package insight implements generation.Generator using Google's Gemini API.
// It turns the extracted text of a vault document into structured insights
// (summary, filing category, keywords, expiry hint).
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/hearthdocs/vault-api/internal/config"
	"github.com/hearthdocs/vault-api/internal/generation"
)

// maxPromptChars bounds the extracted text sent to the model so a large
// document cannot blow the context window.
const maxPromptChars = 24_000

// promptTemplateText asks for strict JSON matching DocumentInsights.
const promptTemplateText = `You are an assistant that files household documents.
Analyze the following document text and respond with ONLY a JSON object with
these fields:
  "summary": one or two sentences describing the document,
  "category": a single lowercase filing category such as "insurance", "taxes",
              "medical", "warranty", "receipts", "legal" or "other",
  "keywords": up to eight search keywords,
  "expiry_hint": an ISO 8601 date if the document mentions an expiration or
                 renewal date, otherwise an empty string.

Document text:
{{.DocumentText}}
`

// promptData represents the data passed to the prompt template
type promptData struct {
	DocumentText string
}

// InsightGenerator implements the generation.Generator interface using
// Google's Gemini API.
type InsightGenerator struct {
	logger *slog.Logger

	// promptTemplate is the parsed template for creating prompts
	promptTemplate *template.Template

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	// maxRetries bounds transient-error retries per request
	maxRetries int

	// baseDelay seeds the retry backoff
	baseDelay time.Duration
}

// Verify InsightGenerator implements generation.Generator.
var _ generation.Generator = (*InsightGenerator)(nil)

// NewInsightGenerator creates a generator from configuration. The API key
// and model name are required.
func NewInsightGenerator(ctx context.Context, logger *slog.Logger, cfg config.InsightConfig) (*InsightGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("insights").Parse(promptTemplateText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &InsightGenerator{
		logger:         logger,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
		maxRetries:     3,
		baseDelay:      2 * time.Second,
	}, nil
}

// GenerateInsights analyzes the extracted text of a user's document.
func (g *InsightGenerator) GenerateInsights(ctx context.Context, extractedText string, userID uuid.UUID) (*generation.DocumentInsights, error) {
	if userID == uuid.Nil {
		return nil, errors.New("user ID cannot be empty")
	}

	prompt, err := g.createPrompt(ctx, extractedText)
	if err != nil {
		return nil, err
	}

	raw, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	insights, err := parseInsights(raw)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to parse model response",
			"user_id", userID.String(),
			"error", err)
		return nil, err
	}

	g.logger.InfoContext(ctx, "generated document insights",
		"user_id", userID.String(),
		"category", insights.Category)
	return insights, nil
}

// createPrompt renders the prompt template over the (bounded) text.
func (g *InsightGenerator) createPrompt(ctx context.Context, extractedText string) (string, error) {
	if extractedText == "" {
		return "", generation.ErrEmptyText
	}
	if len(extractedText) > maxPromptChars {
		extractedText = extractedText[:maxPromptChars]
	}

	var buf bytes.Buffer
	if err := g.promptTemplate.Execute(&buf, promptData{DocumentText: extractedText}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	g.logger.DebugContext(ctx, "prompt generated", "prompt_length", buf.Len())
	return buf.String(), nil
}

// callWithRetry calls the Gemini API with exponential backoff and jitter.
// Safety blocks are permanent and returned immediately; everything else is
// treated as transient.
func (g *InsightGenerator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.baseDelay << (attempt - 1)
			delay += time.Duration(rng.Int63n(int64(delay) / 2))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		g.logger.InfoContext(ctx, "calling Gemini API",
			"attempt", attempt+1,
			"max_attempts", g.maxRetries+1)

		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
			continue
		}
		if len(resp.Candidates) == 0 {
			lastErr = fmt.Errorf("%w: no candidates in response", generation.ErrInvalidResponse)
			continue
		}
		if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
		}

		text := resp.Text()
		if text == "" {
			lastErr = fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, lastErr)
}

// parseInsights decodes the model output, tolerating markdown code fences
// around the JSON object.
func parseInsights(raw string) (*generation.DocumentInsights, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var insights generation.DocumentInsights
	if err := json.Unmarshal([]byte(cleaned), &insights); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	if insights.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", generation.ErrInvalidResponse)
	}
	if insights.Category == "" {
		insights.Category = "other"
	}
	return &insights, nil
}
