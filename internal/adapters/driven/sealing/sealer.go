package sealing

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure Sealer implements the interface.
var _ driven.Sealer = (*Sealer)(nil)

// KeySize is the size in bytes of master and derived keys.
const KeySize = chacha20poly1305.KeySize

// fingerprintSize is the number of key-hash bytes stored in each blob.
const fingerprintSize = 8

// blobMagic prefixes every sealed blob and carries the format version.
var blobMagic = []byte("BSL1")

// headerSize is magic + fingerprint + nonce.
const headerSize = 4 + fingerprintSize + chacha20poly1305.NonceSizeX

// Overhead is the total byte overhead per sealed blob.
const Overhead = headerSize + chacha20poly1305.Overhead

// fingerprintContext separates key fingerprints from any other BLAKE3 use.
const fingerprintContext = "bastion 2026 sealing key fingerprint v1"

// Sealer encrypts and authenticates blobs under one key.
type Sealer struct {
	key         []byte
	fingerprint [fingerprintSize]byte
}

// NewSealer creates a sealer for a 32-byte key. The key is copied.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", domain.ErrInvalidInput, KeySize, len(key))
	}
	s := &Sealer{key: bytes.Clone(key)}
	copy(s.fingerprint[:], keyFingerprint(key))
	return s, nil
}

// Fingerprint returns the hex key fingerprint.
func (s *Sealer) Fingerprint() string {
	return hex.EncodeToString(s.fingerprint[:])
}

// Seal encrypts plaintext, binding aad and the blob header.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	copy(out, blobMagic)
	copy(out[len(blobMagic):], s.fingerprint[:])
	nonce := out[len(blobMagic)+fingerprintSize : headerSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	return aead.Seal(out, nonce, plaintext, buildAAD(out[:len(blobMagic)+fingerprintSize], aad)), nil
}

// Open verifies and decrypts a blob produced by Seal.
func (s *Sealer) Open(blob, aad []byte) ([]byte, error) {
	if len(blob) < len(blobMagic) || !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, domain.ErrNotEncrypted
	}
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes, minimum is %d", domain.ErrTruncated, len(blob), Overhead)
	}
	fp := blob[len(blobMagic) : len(blobMagic)+fingerprintSize]
	if !bytes.Equal(fp, s.fingerprint[:]) {
		return nil, fmt.Errorf("%w: blob key %s, have %s", domain.ErrWrongKey, hex.EncodeToString(fp), s.Fingerprint())
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce := blob[len(blobMagic)+fingerprintSize : headerSize]
	plaintext, err := aead.Open(nil, nonce, blob[headerSize:], buildAAD(blob[:len(blobMagic)+fingerprintSize], aad))
	if err != nil {
		return nil, domain.ErrTampered
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the sealed blob magic.
func IsSealed(data []byte) bool {
	return len(data) >= len(blobMagic) && bytes.Equal(data[:len(blobMagic)], blobMagic)
}

func buildAAD(header, extra []byte) []byte {
	aad := make([]byte, 0, len(header)+len(extra))
	aad = append(aad, header...)
	return append(aad, extra...)
}

func keyFingerprint(key []byte) []byte {
	sum := make([]byte, 32)
	blake3.DeriveKey(fingerprintContext, key, sum)
	return sum[:fingerprintSize]
}
