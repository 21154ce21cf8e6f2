package keymanager

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"

	"github.com/hearthdocs/vault-api/internal/domain"
)

// DefaultChunkSize is the plaintext chunk size for file encryption. Files are
// processed one chunk at a time so a large upload never has to fit in memory,
// and byte-range reads only ever decrypt the chunks they touch.
const DefaultChunkSize = 64 * 1024

// gcmOverhead is the GCM tag appended to every sealed chunk.
const gcmOverhead = 16

// saltSize is the HKDF salt stored in the file metadata.
const saltSize = 16

// fileCipherInfo domain-separates the file cipher subkey from any other use
// of the document key.
const fileCipherInfo = "hearthdocs/file-cipher/v1"

// FileMeta describes the on-disk layout of an encrypted file: everything
// needed to reconstruct arbitrary byte ranges of the plaintext. Persisted as
// JSON alongside the document record.
type FileMeta struct {
	Algorithm     string `json:"algorithm"`
	ChunkSize     int    `json:"chunkSize"`
	NumChunks     int64  `json:"numChunks"`
	PlaintextSize int64  `json:"plaintextSize"`
	Salt          []byte `json:"salt"`
}

// Marshal serializes the metadata for persistence.
func (m *FileMeta) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalFileMeta parses persisted file metadata.
func UnmarshalFileMeta(raw []byte) (*FileMeta, error) {
	var meta FileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse file metadata: %w", err)
	}
	if meta.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: non-positive chunk size in file metadata", domain.ErrDecryption)
	}
	return &meta, nil
}

// EncryptFile streams the file at srcPath through the chunk cipher into
// dstPath. Each chunk is sealed independently with AES-256-GCM under a
// subkey derived from the document key; the chunk index is bound into the
// nonce so chunks cannot be reordered undetected.
func (m *KeyManager) EncryptFile(srcPath, dstPath string, docKey []byte) (*FileMeta, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open source file: %v", domain.ErrEncryption, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ciphertext file: %v", domain.ErrEncryption, err)
	}
	defer func() { _ = dst.Close() }()

	meta, err := encryptStream(src, dst, docKey)
	if err != nil {
		// Leave no partial ciphertext behind.
		_ = os.Remove(dstPath)
		return nil, err
	}

	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return nil, fmt.Errorf("%w: failed to finalize ciphertext file: %v", domain.ErrEncryption, err)
	}

	return meta, nil
}

// encryptStream is the chunk cipher core shared by EncryptFile and tests.
func encryptStream(r io.Reader, w io.Writer, docKey []byte) (*FileMeta, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: failed to generate salt: %v", domain.ErrEncryption, err)
	}

	aead, err := fileAEAD(docKey, salt)
	if err != nil {
		return nil, err
	}

	meta := &FileMeta{
		Algorithm: AlgorithmAESGCM,
		ChunkSize: DefaultChunkSize,
		Salt:      salt,
	}

	plain := make([]byte, DefaultChunkSize)
	sealed := make([]byte, 0, DefaultChunkSize+gcmOverhead)
	var chunk int64
	for {
		n, readErr := io.ReadFull(r, plain)
		if n > 0 {
			sealed = aead.Seal(sealed[:0], chunkNonce(chunk), plain[:n], nil)
			if _, err := w.Write(sealed); err != nil {
				return nil, fmt.Errorf("%w: failed to write ciphertext chunk: %v", domain.ErrEncryption, err)
			}
			meta.PlaintextSize += int64(n)
			chunk++
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: failed to read plaintext: %v", domain.ErrEncryption, readErr)
		}
	}

	meta.NumChunks = chunk
	return meta, nil
}

// DecryptReader decrypts an encrypted file on demand. It implements
// io.ReadSeeker so callers can serve arbitrary byte ranges (paged document
// viewing) without decrypting the whole file.
type DecryptReader struct {
	src       io.ReaderAt
	aead      cipher.AEAD
	chunkSize int64
	plainSize int64

	off      int64
	buf      []byte
	bufChunk int64
}

// NewDecryptReader creates a reader over the ciphertext in src, positioned at
// plaintext offset zero. src must allow random access; both *os.File and
// *bytes.Reader qualify.
func (m *KeyManager) NewDecryptReader(src io.ReaderAt, docKey []byte, meta *FileMeta) (*DecryptReader, error) {
	if meta.Algorithm != AlgorithmAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrDecryption, meta.Algorithm)
	}

	aead, err := fileAEAD(docKey, meta.Salt)
	if err != nil {
		return nil, err
	}

	return &DecryptReader{
		src:       src,
		aead:      aead,
		chunkSize: int64(meta.ChunkSize),
		plainSize: meta.PlaintextSize,
		bufChunk:  -1,
	}, nil
}

// Read decrypts from the current offset. Only the chunks overlapping the
// requested range are read and authenticated.
func (d *DecryptReader) Read(p []byte) (int, error) {
	if d.off >= d.plainSize {
		return 0, io.EOF
	}

	chunk := d.off / d.chunkSize
	if chunk != d.bufChunk {
		if err := d.loadChunk(chunk); err != nil {
			return 0, err
		}
	}

	within := d.off - chunk*d.chunkSize
	n := copy(p, d.buf[within:])
	d.off += int64(n)
	return n, nil
}

// Seek repositions the reader within the plaintext.
func (d *DecryptReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = d.off + offset
	case io.SeekEnd:
		abs = d.plainSize + offset
	default:
		return 0, errors.New("decrypt reader: invalid seek whence")
	}

	if abs < 0 {
		return 0, errors.New("decrypt reader: negative seek position")
	}

	d.off = abs
	return abs, nil
}

// Size returns the plaintext size.
func (d *DecryptReader) Size() int64 {
	return d.plainSize
}

// loadChunk reads, authenticates and decrypts one ciphertext chunk.
func (d *DecryptReader) loadChunk(chunk int64) (err error) {
	plainLen := d.chunkSize
	if rem := d.plainSize - chunk*d.chunkSize; rem < plainLen {
		plainLen = rem
	}

	sealed := make([]byte, plainLen+gcmOverhead)
	cipherOff := chunk * (d.chunkSize + gcmOverhead)
	if _, err := io.ReadFull(io.NewSectionReader(d.src, cipherOff, int64(len(sealed))), sealed); err != nil {
		return fmt.Errorf("%w: failed to read ciphertext chunk %d: %v", domain.ErrDecryption, chunk, err)
	}

	d.buf, err = d.aead.Open(d.buf[:0], chunkNonce(chunk), sealed, nil)
	if err != nil {
		d.bufChunk = -1
		return fmt.Errorf("%w: chunk %d: %v", domain.ErrDecryption, chunk, err)
	}

	d.bufChunk = chunk
	return nil
}

// fileAEAD derives the file cipher subkey from the document key via
// HKDF-SHA256 and returns the chunk AEAD.
func fileAEAD(docKey, salt []byte) (cipher.AEAD, error) {
	if len(docKey) != KeySize {
		return nil, fmt.Errorf("%w: document key must be %d bytes", domain.ErrEncryption, KeySize)
	}

	subKey := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, docKey, salt, []byte(fileCipherInfo))
	if _, err := io.ReadFull(kdf, subKey); err != nil {
		return nil, fmt.Errorf("%w: subkey derivation failed: %v", domain.ErrEncryption, err)
	}

	return newGCM(subKey)
}

// chunkNonce builds the 96-bit GCM nonce for a chunk: four zero bytes
// followed by the big-endian chunk index. Binding the index into the nonce
// makes chunk reordering fail authentication.
func chunkNonce(chunk int64) []byte {
	nonce := make([]byte, 12)
	binary.BigEndian.PutUint64(nonce[4:], uint64(chunk))
	return nonce
}
