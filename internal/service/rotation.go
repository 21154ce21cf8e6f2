package service

import (
	"context"

	"github.com/hearthdocs/vault-api/internal/keymanager"
	"github.com/hearthdocs/vault-api/internal/platform/logger"
	"github.com/hearthdocs/vault-api/internal/store"
)

// RotateMasterKey re-wraps every stored document key under a new master
// key. Document blobs are untouched: only the small wrapped keys are
// rewritten, so rotation cost is independent of vault size.
//
// Rotation is allowed to partially succeed. Keys that fail to unwrap
// (already rotated, or corrupt) and keys whose persistence fails are
// reported per document; the rest are rotated. Running the rotation again
// with the same pair of keys is safe: already-rotated keys simply fail to
// unwrap under the old master and land in the failure list.
func RotateMasterKey(ctx context.Context, docs store.DocumentStore, oldMasterHex, newMasterHex string) (*keymanager.RotationReport, error) {
	log := logger.FromContext(ctx)

	report, err := keymanager.RotateDocumentKeys(oldMasterHex, newMasterHex, func() ([]keymanager.KeyRecord, error) {
		keys, err := docs.ListEncryptedKeys(ctx)
		if err != nil {
			return nil, err
		}
		records := make([]keymanager.KeyRecord, len(keys))
		for i, k := range keys {
			records[i] = keymanager.KeyRecord{DocumentID: k.DocumentID, WrappedKey: k.EncryptedKey}
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	// Persist the rewrapped keys; a failed write moves the key into the
	// failure list so the report reflects the database, not just the
	// crypto.
	persisted := make([]keymanager.RotatedKey, 0, len(report.Succeeded))
	for _, rk := range report.Succeeded {
		if err := docs.UpdateEncryptedKey(ctx, rk.DocumentID, rk.WrappedKey); err != nil {
			log.Error("failed to persist rotated key",
				"document_id", rk.DocumentID,
				"error", err)
			report.Failed = append(report.Failed, keymanager.RotationFailure{
				DocumentID: rk.DocumentID,
				Reason:     "failed to persist rotated key: " + err.Error(),
			})
			continue
		}
		persisted = append(persisted, rk)
	}
	report.Succeeded = persisted

	log.Info("master key rotation finished",
		"rotated", len(report.Succeeded),
		"failed", len(report.Failed))
	return report, nil
}
