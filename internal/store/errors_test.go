package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthdocs/vault-api/internal/store"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("entity-specific not found errors match the generic sentinel", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, store.ErrDocumentNotFound, store.ErrNotFound)
		assert.ErrorIs(t, store.ErrJobNotFound, store.ErrNotFound)
	})

	t.Run("wrapped errors still match", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("loading vault item: %w", store.ErrDocumentNotFound)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate storage key matches ErrDuplicate", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, store.ErrStorageKeyExists, store.ErrDuplicate)
	})
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, store.IsNotFoundError(store.ErrNotFound))
	assert.True(t, store.IsNotFoundError(store.ErrDocumentNotFound))
	assert.True(t, store.IsNotFoundError(fmt.Errorf("ctx: %w", store.ErrJobNotFound)))
	assert.False(t, store.IsNotFoundError(store.ErrDuplicate))
	assert.False(t, store.IsNotFoundError(errors.New("unrelated")))
	assert.False(t, store.IsNotFoundError(nil))
}

func TestIsDuplicateError(t *testing.T) {
	t.Parallel()

	assert.True(t, store.IsDuplicateError(store.ErrDuplicate))
	assert.True(t, store.IsDuplicateError(store.ErrStorageKeyExists))
	assert.False(t, store.IsDuplicateError(store.ErrNotFound))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("message includes entity, operation, and cause", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection reset")
		err := store.NewStoreError("document", "create", "insert failed", cause)
		assert.Equal(t, "create operation on document failed: insert failed: connection reset", err.Error())
	})

	t.Run("message without cause", func(t *testing.T) {
		t.Parallel()
		err := store.NewStoreError("job", "update", "no rows affected", nil)
		assert.Equal(t, "update operation on job failed: no rows affected", err.Error())
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		t.Parallel()
		err := store.NewStoreError("document", "get", "lookup failed", store.ErrDocumentNotFound)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)

		var serr *store.StoreError
		assert.ErrorAs(t, err, &serr)
		assert.Equal(t, "document", serr.Entity)
	})
}
