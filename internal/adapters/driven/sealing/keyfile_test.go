package sealing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

func TestKeyFile_GenerateAndFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")
	kf := NewKeyFile(path)

	generated, err := kf.Generate(false)
	require.NoError(t, err)
	assert.NotEmpty(t, generated)

	read, err := kf.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, generated, read)
	assert.Equal(t, path, kf.Location())

	kr, _, err := LoadOrCreateKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, generated, kr.Fingerprint())
}

func TestKeyFile_GenerateRefusesExisting(t *testing.T) {
	kf := NewKeyFile(filepath.Join(t.TempDir(), "master.key"))
	first, err := kf.Generate(false)
	require.NoError(t, err)

	_, err = kf.Generate(false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	second, err := kf.Generate(true)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestKeyFile_FingerprintMissing(t *testing.T) {
	kf := NewKeyFile(filepath.Join(t.TempDir(), "absent.key"))

	_, err := kf.Fingerprint()

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
