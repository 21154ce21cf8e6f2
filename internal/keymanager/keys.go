// Package keymanager implements envelope encryption for document storage.
//
// Every document gets its own random 256-bit key. The document key encrypts
// the file bytes; the master key encrypts the document key. Rotating the
// master key therefore re-wraps only the small per-document keys, never the
// bulk ciphertext.
package keymanager

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/domain"
)

// KeySize is the size in bytes of master and document keys (256 bits).
const KeySize = 32

// AlgorithmAESGCM is the algorithm identifier persisted in document records.
const AlgorithmAESGCM = "aes-256-gcm"

// KeyManager wraps and unwraps document keys under a process-wide master key.
type KeyManager struct {
	master []byte
}

// New creates a KeyManager from the hex-encoded master key provisioned by the
// operator. A missing or malformed key is a fatal configuration error; the
// caller must abort startup.
func New(masterHex string) (*KeyManager, error) {
	master, err := parseMasterKey(masterHex)
	if err != nil {
		return nil, err
	}
	return &KeyManager{master: master}, nil
}

// GenerateMasterKey returns a fresh random 256-bit key, hex-encoded for
// storage in secret configuration.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// GenerateDocumentKey returns a fresh random 256-bit document key. One is
// generated per document at ingestion and exists in plaintext only
// transiently.
func (m *KeyManager) GenerateDocumentKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate document key: %w", err)
	}
	return key, nil
}

// EncryptDocumentKey wraps a document key under the master key using
// AES-256-GCM. The result is nonce || ciphertext and is what gets persisted
// with the document record.
func (m *KeyManager) EncryptDocumentKey(key []byte) ([]byte, error) {
	return wrapKey(m.master, key)
}

// DecryptDocumentKey unwraps a previously wrapped document key. Tampered
// ciphertext and a wrong master key are indistinguishable; both surface as
// domain.ErrDecryption because GCM authenticates before decrypting.
func (m *KeyManager) DecryptDocumentKey(wrapped []byte) ([]byte, error) {
	return unwrapKey(m.master, wrapped)
}

// SelfTest performs a generate → wrap → unwrap round trip and verifies the
// recovered key matches. Run at startup and from the admin validate command.
func (m *KeyManager) SelfTest() error {
	key, err := m.GenerateDocumentKey()
	if err != nil {
		return err
	}

	wrapped, err := m.EncryptDocumentKey(key)
	if err != nil {
		return err
	}

	recovered, err := m.DecryptDocumentKey(wrapped)
	if err != nil {
		return err
	}

	if len(recovered) != len(key) {
		return fmt.Errorf("%w: self-test round trip produced wrong key length", domain.ErrEncryption)
	}
	for i := range key {
		if recovered[i] != key[i] {
			return fmt.Errorf("%w: self-test round trip mismatch", domain.ErrEncryption)
		}
	}
	return nil
}

// KeyRecord pairs a document ID with its wrapped document key, as supplied by
// the metadata store during rotation.
type KeyRecord struct {
	DocumentID uuid.UUID
	WrappedKey []byte
}

// RotatedKey is a successfully re-wrapped document key.
type RotatedKey struct {
	DocumentID uuid.UUID
	WrappedKey []byte
}

// RotationFailure records a per-document rotation failure. Failures are
// reported, never silently dropped, and never abort the batch.
type RotationFailure struct {
	DocumentID uuid.UUID
	Reason     string
}

// RotationReport is the outcome of a master key rotation batch.
type RotationReport struct {
	Succeeded []RotatedKey
	Failed    []RotationFailure
}

// RotateDocumentKeys unwraps every supplied document key under the old master
// key and re-wraps it under the new one. A record that fails to unwrap (for
// example because the old key never wrapped it) is recorded in the report and
// the batch continues. Only invalid master keys or a supplier failure abort
// the operation.
func RotateDocumentKeys(oldMasterHex, newMasterHex string, supply func() ([]KeyRecord, error)) (*RotationReport, error) {
	oldMaster, err := parseMasterKey(oldMasterHex)
	if err != nil {
		return nil, fmt.Errorf("old master key: %w", err)
	}
	newMaster, err := parseMasterKey(newMasterHex)
	if err != nil {
		return nil, fmt.Errorf("new master key: %w", err)
	}

	records, err := supply()
	if err != nil {
		return nil, fmt.Errorf("failed to load key records: %w", err)
	}

	report := &RotationReport{}
	for _, rec := range records {
		docKey, err := unwrapKey(oldMaster, rec.WrappedKey)
		if err != nil {
			report.Failed = append(report.Failed, RotationFailure{
				DocumentID: rec.DocumentID,
				Reason:     fmt.Sprintf("unwrap under old key: %v", err),
			})
			continue
		}

		rewrapped, err := wrapKey(newMaster, docKey)
		if err != nil {
			report.Failed = append(report.Failed, RotationFailure{
				DocumentID: rec.DocumentID,
				Reason:     fmt.Sprintf("wrap under new key: %v", err),
			})
			continue
		}

		report.Succeeded = append(report.Succeeded, RotatedKey{
			DocumentID: rec.DocumentID,
			WrappedKey: rewrapped,
		})
	}

	return report, nil
}

// parseMasterKey decodes and validates a hex-encoded 256-bit master key.
func parseMasterKey(masterHex string) ([]byte, error) {
	if masterHex == "" {
		return nil, fmt.Errorf("%w: master key is not set", domain.ErrConfiguration)
	}

	master, err := hex.DecodeString(masterHex)
	if err != nil {
		return nil, fmt.Errorf("%w: master key is not valid hex: %v", domain.ErrConfiguration, err)
	}

	if len(master) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", domain.ErrConfiguration, KeySize, len(master))
	}

	return master, nil
}

// wrapKey seals plaintext under the given key with AES-256-GCM and a random
// nonce. Output layout: nonce || ciphertext+tag.
func wrapKey(master, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(master)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", domain.ErrEncryption, err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// unwrapKey opens a nonce||ciphertext blob produced by wrapKey.
func unwrapKey(master, wrapped []byte) ([]byte, error) {
	aead, err := newGCM(master)
	if err != nil {
		return nil, err
	}

	if len(wrapped) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: wrapped key too short", domain.ErrDecryption)
	}

	nonce, ciphertext := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	return aead, nil
}
