package sealing

import (
	"errors"
	"fmt"
	"os"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure KeyFile implements the interface.
var _ driven.KeyStore = (*KeyFile)(nil)

// KeyFile is a master key stored as raw bytes in a 0600 file.
type KeyFile struct {
	path string
}

// NewKeyFile returns a key store backed by path.
func NewKeyFile(path string) *KeyFile {
	return &KeyFile{path: path}
}

// Generate writes a new random key.
func (f *KeyFile) Generate(overwrite bool) (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := WriteKeyFile(f.path, key, overwrite); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: key file %s already exists", domain.ErrInvalidInput, f.path)
		}
		return "", err
	}
	kr, err := NewKeyring(key)
	if err != nil {
		return "", err
	}
	return kr.Fingerprint(), nil
}

// Fingerprint reads the key file and identifies the key.
func (f *KeyFile) Fingerprint() (string, error) {
	kr, err := f.Keyring()
	if err != nil {
		return "", err
	}
	return kr.Fingerprint(), nil
}

// Keyring reads the key file.
func (f *KeyFile) Keyring() (*Keyring, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("key file %s: %w", f.path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	kr, err := NewKeyring(data)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", f.path, err)
	}
	return kr, nil
}

// Location returns the key file path.
func (f *KeyFile) Location() string {
	return f.path
}
