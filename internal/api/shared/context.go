package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hearthdocs/vault-api/internal/domain"
)

// ContextKey is the key type for values this package stores in contexts.
type ContextKey string

const (
	// PrincipalContextKey holds the authenticated principal for the request.
	PrincipalContextKey ContextKey = "principal"

	// TraceIDKey holds the per-request trace ID.
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a trace ID.
	TraceIDLength = 16
)

// WithPrincipal stores the authenticated principal in the context. The
// principal is produced once at the authentication boundary; handlers read
// it back with PrincipalFromContext and never reconstruct it.
func WithPrincipal(ctx context.Context, p domain.AuthenticatedPrincipal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// PrincipalFromContext returns the request's principal, if one was set.
func PrincipalFromContext(ctx context.Context) (domain.AuthenticatedPrincipal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(domain.AuthenticatedPrincipal)
	return p, ok
}

// SetTraceID adds a fresh trace ID to the context for log correlation.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// generateTraceID returns a 32-character hex trace ID. If crypto/rand fails
// it falls back to a time-seeded ID rather than a static value.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	n, err := rand.Read(b)
	if err != nil || n != TraceIDLength {
		slog.Error("failed to generate random trace ID",
			"error", err,
			"bytes_read", n)
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b)
}
