package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdocs/vault-api/internal/domain"
	"github.com/hearthdocs/vault-api/internal/store"
)

func newMockDB(t *testing.T) (*PostgresDocumentStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresDocumentStore(db), mock
}

func validDocument(t *testing.T) *domain.Document {
	t.Helper()
	doc, err := domain.NewDocument(uuid.New(), "lease.pdf", "application/pdf")
	require.NoError(t, err)
	doc.StorageKey = "users/u/docs/d/lease.pdf"
	doc.StorageType = domain.StorageTypeLocal
	doc.IsEncrypted = true
	doc.Algorithm = "aes-256-gcm"
	doc.EncryptedKey = []byte("wrapped")
	return doc
}

func TestPostgresDocumentStore_CreateDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO documents").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.CreateDocument(context.Background(), validDocument(t))
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate storage key", func(t *testing.T) {
		s, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO documents").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := s.CreateDocument(context.Background(), validDocument(t))
		assert.ErrorIs(t, err, store.ErrStorageKeyExists)
	})

	t.Run("invalid document rejected before SQL", func(t *testing.T) {
		s, _ := newMockDB(t)
		doc := validDocument(t)
		doc.StorageKey = ""

		err := s.CreateDocument(context.Background(), doc)
		require.Error(t, err)

		var serr *store.StoreError
		assert.ErrorAs(t, err, &serr)
		assert.Equal(t, "create", serr.Operation)
	})
}

func TestPostgresDocumentStore_GetDocument(t *testing.T) {
	columns := []string{
		"id", "user_id", "file_name", "mime_type", "storage_key", "storage_type",
		"is_encrypted", "algorithm", "encrypted_key", "file_meta", "status",
		"extracted_text", "insights", "thumbnail_key", "created_at", "updated_at",
	}

	t.Run("found", func(t *testing.T) {
		s, mock := newMockDB(t)
		want := validDocument(t)
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT .+ FROM documents WHERE id").
			WithArgs(want.ID).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				want.ID, want.UserID, want.FileName, want.MimeType,
				want.StorageKey, string(want.StorageType),
				want.IsEncrypted, want.Algorithm, want.EncryptedKey, nil,
				string(want.Status), nil, nil, nil, now, now,
			))

		got, err := s.GetDocument(context.Background(), want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.StorageKey, got.StorageKey)
		assert.Equal(t, want.Algorithm, got.Algorithm)
		assert.True(t, got.IsEncrypted)
		assert.Empty(t, got.ExtractedText)
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockDB(t)
		id := uuid.New()
		mock.ExpectQuery("SELECT .+ FROM documents WHERE id").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := s.GetDocument(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})
}

func TestPostgresDocumentStore_UpdateDocument(t *testing.T) {
	t.Run("missing row maps to not found", func(t *testing.T) {
		s, mock := newMockDB(t)
		mock.ExpectExec("UPDATE documents").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.UpdateDocument(context.Background(), validDocument(t))
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("success", func(t *testing.T) {
		s, mock := newMockDB(t)
		mock.ExpectExec("UPDATE documents").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.UpdateDocument(context.Background(), validDocument(t)))
	})
}

func TestPostgresDocumentStore_DeleteDocument(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, mock := newMockDB(t)
		id := uuid.New()
		mock.ExpectExec("DELETE FROM documents").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.DeleteDocument(context.Background(), id))
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		s, mock := newMockDB(t)
		id := uuid.New()
		mock.ExpectExec("DELETE FROM documents").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, s.DeleteDocument(context.Background(), id), store.ErrDocumentNotFound)
	})
}

func TestPostgresDocumentStore_ListEncryptedKeys(t *testing.T) {
	s, mock := newMockDB(t)
	id1, id2 := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT id, encrypted_key").
		WillReturnRows(sqlmock.NewRows([]string{"id", "encrypted_key"}).
			AddRow(id1, []byte("k1")).
			AddRow(id2, []byte("k2")))

	keys, err := s.ListEncryptedKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, id1, keys[0].DocumentID)
	assert.Equal(t, []byte("k2"), keys[1].EncryptedKey)
}

func TestPostgresDocumentStore_UpdateEncryptedKey(t *testing.T) {
	s, mock := newMockDB(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE documents SET encrypted_key").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.UpdateEncryptedKey(context.Background(), id, []byte("rewrapped")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDocumentStore_CountByEncryption(t *testing.T) {
	s, mock := newMockDB(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"encrypted", "unencrypted"}).AddRow(12, 3))

	counts, err := s.CountByEncryption(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), counts.Encrypted)
	assert.Equal(t, int64(3), counts.Unencrypted)
}
