package service

import (
	"context"
	"io"
)

// Converter normalizes exotic formats into something the pipeline handles
// natively (HEIC to JPEG, DOCX to PDF). Conversion runs before encryption
// under a hard timeout; a conversion failure is never fatal, the pipeline
// continues with the original bytes.
type Converter interface {
	// Convert returns the path and MIME type of the converted file. The
	// returned path is a new temp file owned by the caller.
	Convert(ctx context.Context, srcPath, mimeType string) (string, string, error)
}

// Extractor pulls searchable text out of a document (OCR or native text
// extraction). Implementations talk to an external engine.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, mimeType string) (string, error)
}

// Renderer produces a small preview image for a document.
type Renderer interface {
	// RenderThumbnail returns the image bytes and their MIME type.
	RenderThumbnail(ctx context.Context, r io.Reader, mimeType string) ([]byte, string, error)
}
