package generation

import (
	"context"

	"github.com/google/uuid"
)

// DocumentInsights is the structured analysis of one document's text.
type DocumentInsights struct {
	// Summary is a short plain-language description of the document.
	Summary string `json:"summary"`

	// Category is a single household-filing category, e.g. "insurance",
	// "taxes", "medical", "warranty".
	Category string `json:"category"`

	// Keywords are search terms extracted from the text.
	Keywords []string `json:"keywords,omitempty"`

	// ExpiryHint is an ISO date string when the document mentions an
	// expiration or renewal date, empty otherwise.
	ExpiryHint string `json:"expiry_hint,omitempty"`
}

// Generator defines the interface for deriving insights from document text.
// This interface serves as a boundary between the application core and
// external AI/LLM services.
type Generator interface {
	// GenerateInsights analyzes the extracted text of a user's document.
	//
	// Parameters:
	//   - ctx: Context for the operation, which can be used for cancellation
	//   - extractedText: The OCR/text-extraction output to analyze
	//   - userID: The UUID of the user who owns the document
	//
	// Returns:
	//   - The structured insights
	//   - An error if generation fails (see errors.go for specific types)
	GenerateInsights(ctx context.Context, extractedText string, userID uuid.UUID) (*DocumentInsights, error)
}
