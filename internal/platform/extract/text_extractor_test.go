package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	e := NewPlainTextExtractor()
	ctx := context.Background()

	t.Run("reads plain text", func(t *testing.T) {
		got, err := e.Extract(ctx, strings.NewReader("hello vault"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, "hello vault", got)
	})

	t.Run("handles charset parameters", func(t *testing.T) {
		got, err := e.Extract(ctx, strings.NewReader("csv,data"), "text/csv; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, "csv,data", got)
	})

	t.Run("yields nothing for binary formats", func(t *testing.T) {
		got, err := e.Extract(ctx, strings.NewReader("%PDF-1.7"), "application/pdf")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("sanitizes invalid UTF-8", func(t *testing.T) {
		got, err := e.Extract(ctx, strings.NewReader("ok\xff\xfe"), "text/plain")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "ok"))
		assert.True(t, strings.Contains(got, "�"))
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Extract(cancelled, strings.NewReader("x"), "text/plain")
		assert.Error(t, err)
	})
}
