package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// maxFileNameLen bounds the sanitized file name component of an object key.
// Backends reject very long keys; the document ID carries uniqueness, so the
// name is only there for operator readability.
const maxFileNameLen = 128

// ObjectKey derives the storage key for a document:
//
//	users/<userID>/docs/<documentID>/<sanitized file name>
//
// The document ID is the uniqueness token, so two users (or one user, twice)
// uploading identically named files never collide.
func ObjectKey(userID, documentID uuid.UUID, fileName string) string {
	return fmt.Sprintf("users/%s/docs/%s/%s", userID, documentID, SanitizeFileName(fileName))
}

// SanitizeFileName reduces an untrusted file name to a safe key component:
// path separators and traversal sequences are stripped, control characters
// and key-hostile punctuation are replaced, and the result is length-bounded.
// An empty result becomes "file".
func SanitizeFileName(name string) string {
	// Drop any directory part, including Windows-style separators.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	out = strings.Trim(out, ".")
	if out == "" {
		out = "file"
	}
	if len(out) > maxFileNameLen {
		out = out[len(out)-maxFileNameLen:]
	}
	return out
}
