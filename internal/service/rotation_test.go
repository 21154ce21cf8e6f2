package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdocs/vault-api/internal/keymanager"
)

func TestRotateMasterKeyRewrapsAllKeys(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	first, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("first document")))
	require.NoError(t, err)
	second, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("second document")))
	require.NoError(t, err)

	newHex, err := keymanager.GenerateMasterKey()
	require.NoError(t, err)

	report, err := RotateMasterKey(ctx, fx.docs, fx.masterHex, newHex)
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 2)
	assert.Empty(t, report.Failed)

	// The persisted keys unwrap under the new master and not the old one.
	newKeys, err := keymanager.New(newHex)
	require.NoError(t, err)
	oldKeys, err := keymanager.New(fx.masterHex)
	require.NoError(t, err)

	firstStored, err := fx.docs.GetDocument(ctx, first.ID)
	require.NoError(t, err)
	secondStored, err := fx.docs.GetDocument(ctx, second.ID)
	require.NoError(t, err)

	for _, wrapped := range [][]byte{firstStored.EncryptedKey, secondStored.EncryptedKey} {
		_, err := newKeys.DecryptDocumentKey(wrapped)
		assert.NoError(t, err)
		_, err = oldKeys.DecryptDocumentKey(wrapped)
		assert.Error(t, err)
	}
}

func TestRotateMasterKeyReportsPersistFailures(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	healthy, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("rotates fine")))
	require.NoError(t, err)
	stuck, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("write will fail")))
	require.NoError(t, err)

	fx.docs.failKeyUpdate = map[uuid.UUID]error{stuck.ID: errors.New("disk full")}

	newHex, err := keymanager.GenerateMasterKey()
	require.NoError(t, err)

	report, err := RotateMasterKey(ctx, fx.docs, fx.masterHex, newHex)
	require.NoError(t, err)

	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, healthy.ID, report.Succeeded[0].DocumentID)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, stuck.ID, report.Failed[0].DocumentID)
	assert.Contains(t, report.Failed[0].Reason, "persist")

	// The failed document's key is untouched and still unwraps under the
	// old master, so a re-run can pick it up.
	stuckStored, err := fx.docs.GetDocument(ctx, stuck.ID)
	require.NoError(t, err)
	oldKeys, err := keymanager.New(fx.masterHex)
	require.NoError(t, err)
	_, err = oldKeys.DecryptDocumentKey(stuckStored.EncryptedKey)
	assert.NoError(t, err)
}

func TestRotateMasterKeyRerunIsSafe(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.svc.Ingest(ctx, fx.principal, stageUpload(t, []byte("rotate me")))
	require.NoError(t, err)

	newHex, err := keymanager.GenerateMasterKey()
	require.NoError(t, err)

	report, err := RotateMasterKey(ctx, fx.docs, fx.masterHex, newHex)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 1)

	// Same pair again: the key no longer unwraps under the old master, so
	// it lands in the failure list instead of being double-rotated.
	rerun, err := RotateMasterKey(ctx, fx.docs, fx.masterHex, newHex)
	require.NoError(t, err)
	assert.Empty(t, rerun.Succeeded)
	assert.Len(t, rerun.Failed, 1)
}
