package flat

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/adapters/driven/sealing"
	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

func newSealer(t *testing.T) *sealing.Sealer {
	t.Helper()
	key, err := sealing.GenerateKey()
	require.NoError(t, err)
	s, err := sealing.NewSealer(key)
	require.NoError(t, err)
	return s
}

func populate(t *testing.T, idx *Index) {
	t.Helper()
	require.NoError(t, idx.Add(context.Background(),
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]domain.Chunk{
			testChunk("alpha", 0, domain.Secret, map[string]string{domain.MetaDocumentType: "txt"}),
			testChunk("alpha", 1, domain.Secret, nil),
			testChunk("beta", 0, domain.Unclassified, nil),
		}))
}

func TestPersist_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		sealed bool
		files  []string
		absent []string
	}{
		{name: "sealed", sealed: true, files: []string{SealedFile}, absent: []string{MatrixFile, SidecarFile}},
		{name: "plaintext", sealed: false, files: []string{MatrixFile, SidecarFile}, absent: []string{SealedFile}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			cfg := Config{Dir: dir, Dimension: 3}
			if tt.sealed {
				cfg.Sealer = newSealer(t)
			}

			idx, err := New(cfg)
			require.NoError(t, err)
			populate(t, idx)
			require.NoError(t, idx.Save(ctx))

			for _, f := range tt.files {
				info, err := os.Stat(filepath.Join(dir, f))
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}
			for _, f := range tt.absent {
				assert.NoFileExists(t, filepath.Join(dir, f))
			}

			reloaded, err := New(cfg)
			require.NoError(t, err)
			result, err := reloaded.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, driven.LoadStateLoaded, result.State)
			assert.Equal(t, 3, result.Count)

			hits, err := reloaded.Search(ctx, []float32{0, 1, 0}, driven.VectorQuery{TopK: 1, Ceiling: domain.TopSecret})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "alpha_chunk_1", hits[0].ChunkID)
			assert.Equal(t, domain.Secret, hits[0].Classification)
			assert.Equal(t, "alpha", hits[0].Metadata[domain.MetaDocumentID])
			assert.Equal(t, idx.Stats(), reloaded.Stats())
		})
	}
}

func TestPersist_SealedFileHidesContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))

	data, err := os.ReadFile(filepath.Join(dir, SealedFile))
	require.NoError(t, err)
	assert.True(t, sealing.IsSealed(data))
	assert.NotContains(t, string(data), "alpha")
	assert.NotContains(t, string(data), "content of")
}

func TestPersist_SaveSealedRemovesPlaintext(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	plain, err := New(Config{Dir: dir, Dimension: 3})
	require.NoError(t, err)
	populate(t, plain)
	require.NoError(t, plain.Save(ctx))
	require.FileExists(t, filepath.Join(dir, MatrixFile))

	sealed, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
	require.NoError(t, err)
	populate(t, sealed)
	require.NoError(t, sealed.Save(ctx))

	assert.FileExists(t, filepath.Join(dir, SealedFile))
	assert.NoFileExists(t, filepath.Join(dir, MatrixFile))
	assert.NoFileExists(t, filepath.Join(dir, SidecarFile))
}

func TestPersist_LoadNotFound(t *testing.T) {
	for _, sealed := range []bool{true, false} {
		cfg := Config{Dir: t.TempDir(), Dimension: 3}
		if sealed {
			cfg.Sealer = newSealer(t)
		}
		idx, err := New(cfg)
		require.NoError(t, err)

		result, err := idx.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, driven.LoadStateNotFound, result.State)
		assert.Equal(t, 0, idx.Len())
	}
}

func TestPersist_LoadWrongKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))

	other, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
	require.NoError(t, err)
	result, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateCorrupt, result.State)
	assert.ErrorIs(t, result.Reason, domain.ErrWrongKey)
	assert.ErrorIs(t, result.Reason, domain.ErrDecryption)
	assert.Equal(t, 0, other.Len())
}

func TestPersist_LoadTampered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sealer := newSealer(t)

	idx, err := New(Config{Dir: dir, Dimension: 3, Sealer: sealer})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))

	path := filepath.Join(dir, SealedFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	reloaded, err := New(Config{Dir: dir, Dimension: 3, Sealer: sealer})
	require.NoError(t, err)
	result, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateCorrupt, result.State)
	assert.ErrorIs(t, result.Reason, domain.ErrTampered)
}

func TestPersist_LoadKeepsContentsOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SealedFile), []byte("garbage"), 0600))

	idx, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
	require.NoError(t, err)
	populate(t, idx)

	result, err := idx.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateCorrupt, result.State)
	assert.ErrorIs(t, result.Reason, domain.ErrNotEncrypted)
	assert.Equal(t, 3, idx.Len())
}

func TestPersist_EncryptionMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("sealed index read without key", func(t *testing.T) {
		dir := t.TempDir()
		idx, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
		require.NoError(t, err)
		populate(t, idx)
		require.NoError(t, idx.Save(ctx))

		plain, err := New(Config{Dir: dir, Dimension: 3})
		require.NoError(t, err)
		result, err := plain.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, driven.LoadStateCorrupt, result.State)
		assert.ErrorIs(t, result.Reason, domain.ErrDecryption)
	})

	t.Run("plaintext index read with key", func(t *testing.T) {
		dir := t.TempDir()
		idx, err := New(Config{Dir: dir, Dimension: 3})
		require.NoError(t, err)
		populate(t, idx)
		require.NoError(t, idx.Save(ctx))

		sealed, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
		require.NoError(t, err)
		result, err := sealed.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, driven.LoadStateCorrupt, result.State)
		assert.ErrorIs(t, result.Reason, domain.ErrNotEncrypted)
	})
}

func TestPersist_LoadDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := New(Config{Dir: dir, Dimension: 3})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))

	other, err := New(Config{Dir: dir, Dimension: 4})
	require.NoError(t, err)
	_, err = other.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPersist_PlainMissingSidecar(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := New(Config{Dir: dir, Dimension: 3})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))
	require.NoError(t, os.Remove(filepath.Join(dir, SidecarFile)))

	result, err := idx.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateCorrupt, result.State)
	assert.ErrorIs(t, result.Reason, domain.ErrCorrupt)
}

func TestPersist_EmptyIndex(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Dir: t.TempDir(), Dimension: 3, Sealer: newSealer(t)}

	idx, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Save(ctx))

	reloaded, err := New(cfg)
	require.NoError(t, err)
	result, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateLoaded, result.State)
	assert.Equal(t, 0, result.Count)
}

func TestPersist_FailedLoadLeavesIndexClean(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sealer := newSealer(t)

	idx, err := New(Config{Dir: dir, Dimension: 3, Sealer: sealer})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))

	other, err := New(Config{Dir: dir, Dimension: 3, Sealer: newSealer(t)})
	require.NoError(t, err)
	result, err := other.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, driven.LoadStateCorrupt, result.State)
	assert.False(t, other.Dirty(), "nothing to save after a corrupt load")

	reloaded, err := New(Config{Dir: dir, Dimension: 3, Sealer: sealer})
	require.NoError(t, err)
	result, err = reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateLoaded, result.State)
	assert.Equal(t, 3, result.Count)
}

func TestPersist_ForgedMatrixHeader(t *testing.T) {
	tests := []struct {
		name      string
		dimension uint32
		count     uint32
	}{
		{name: "huge count", dimension: 3, count: 1 << 31},
		{name: "count times dimension wraps", dimension: 3, count: 0x55555556},
		{name: "huge dimension", dimension: 1 << 31, count: 1 << 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			idx, err := New(Config{Dir: dir, Dimension: 3})
			require.NoError(t, err)
			populate(t, idx)
			require.NoError(t, idx.Save(ctx))

			path := filepath.Join(dir, MatrixFile)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			binary.LittleEndian.PutUint32(data[8:], tt.dimension)
			binary.LittleEndian.PutUint32(data[12:], tt.count)
			require.NoError(t, os.WriteFile(path, data, 0600))

			reloaded, err := New(Config{Dir: dir, Dimension: 3})
			require.NoError(t, err)
			result, err := reloaded.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, driven.LoadStateCorrupt, result.State)
			assert.ErrorIs(t, result.Reason, domain.ErrCorrupt)
			assert.Equal(t, 0, reloaded.Len())
		})
	}
}

func TestPersist_PlainGenerationMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := New(Config{Dir: dir, Dimension: 3})
	require.NoError(t, err)
	populate(t, idx)
	require.NoError(t, idx.Save(ctx))

	oldSidecar, err := os.ReadFile(filepath.Join(dir, SidecarFile))
	require.NoError(t, err)

	_, err = idx.DeleteDocument(ctx, "beta")
	require.NoError(t, err)
	require.NoError(t, idx.Save(ctx))

	// A crash between the two renames leaves the new matrix beside the old sidecar.
	require.NoError(t, os.WriteFile(filepath.Join(dir, SidecarFile), oldSidecar, 0600))

	reloaded, err := New(Config{Dir: dir, Dimension: 3})
	require.NoError(t, err)
	result, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, driven.LoadStateCorrupt, result.State)
	assert.ErrorIs(t, result.Reason, domain.ErrCorrupt)
	assert.Contains(t, result.Reason.Error(), "different saves")
}
