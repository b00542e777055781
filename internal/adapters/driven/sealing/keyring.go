package sealing

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// Purpose selects a derived key. Changing a purpose string invalidates
// every artifact sealed under it.
type Purpose string

// Derivation purposes.
const (
	PurposeIndex Purpose = "bastion.index.v1"
	PurposeAudit Purpose = "bastion.audit.v1"
)

// Keyring holds the master key and derives purpose keys from it.
type Keyring struct {
	master []byte
}

// NewKeyring wraps a caller-provided 32-byte master key.
func NewKeyring(master []byte) (*Keyring, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", domain.ErrInvalidInput, KeySize, len(master))
	}
	return &Keyring{master: bytes.Clone(master)}, nil
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// LoadOrCreateKeyFile reuses the key stored at path, or generates one and
// writes it with 0600 permissions. The boolean reports whether a new key
// was created. Key stability across restarts keeps artifacts readable.
func LoadOrCreateKeyFile(path string) (*Keyring, bool, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		kr, err := NewKeyring(data)
		if err != nil {
			return nil, false, fmt.Errorf("key file %s: %w", path, err)
		}
		return kr, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("read key file: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, false, err
	}
	if err := WriteKeyFile(path, key, false); err != nil {
		return nil, false, err
	}
	kr, err := NewKeyring(key)
	return kr, true, err
}

// WriteKeyFile persists a key. An existing file is only replaced when
// overwrite is set.
func WriteKeyFile(path string, key []byte, overwrite bool) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes", domain.ErrInvalidInput, KeySize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync key file: %w", err)
	}
	return f.Close()
}

// Derive returns the key for a purpose.
func (k *Keyring) Derive(purpose Purpose) ([]byte, error) {
	reader := hkdf.New(sha256.New, k.master, nil, []byte(purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("HKDF derivation for %s: %w", purpose, err)
	}
	return key, nil
}

// Sealer returns a sealer keyed for the purpose.
func (k *Keyring) Sealer(purpose Purpose) (*Sealer, error) {
	key, err := k.Derive(purpose)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// Fingerprint identifies the master key.
func (k *Keyring) Fingerprint() string {
	s, _ := NewSealer(k.master)
	return s.Fingerprint()
}
