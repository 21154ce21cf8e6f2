// Package extract provides the built-in text extraction engine. It handles
// plain-text formats directly; binary formats (PDF, images) need an external
// OCR engine plugged in behind the same interface.
package extract

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"
)

// maxExtractBytes caps how much text is pulled from a single document.
const maxExtractBytes = 1 << 20 // 1 MiB

// PlainTextExtractor extracts text from text-native mime types and yields
// nothing (without failing) for formats it cannot read, so the enrichment
// chain still completes for binary documents.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a PlainTextExtractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extract reads the document as UTF-8 text when the mime type is text-native.
func (e *PlainTextExtractor) Extract(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !isTextMime(mimeType) {
		return "", nil
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxExtractBytes))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), nil
}

func isTextMime(mimeType string) bool {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))

	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/x-ndjson", "image/svg+xml":
		return true
	}
	return false
}
