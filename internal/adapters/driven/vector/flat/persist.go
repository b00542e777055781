package flat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Artifact file names inside Config.Dir.
const (
	SealedFile  = "index.sealed"
	MatrixFile  = "index.bin"
	SidecarFile = "index.meta.cbor"
)

// sealedAAD binds sealed snapshots to their role.
var sealedAAD = []byte("bastion.vector-index")

// Save persists the index. With a sealer it writes one sealed blob and
// removes any plaintext artifacts; without one it writes the sidecar and
// then the matrix, both stamped with the same generation id so Load can
// tell when it sees halves of two different saves.
func (x *Index) Save(_ context.Context) error {
	if x.cfg.Dir == "" {
		return fmt.Errorf("%w: index has no directory", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(x.cfg.Dir, 0700); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	x.mu.RLock()
	entries := x.entries
	vectors := x.vectors
	changes := x.changes
	var (
		blob, matrix, meta []byte
		err                error
	)
	if x.cfg.Sealer != nil {
		blob, err = encodeSnapshot(snapshot{
			Version:   snapshotVersion,
			Dimension: x.cfg.Dimension,
			Entries:   entries,
			Vectors:   vectors,
		})
	} else {
		gen := uuid.New()
		matrix = encodeMatrix(vectors, x.cfg.Dimension, gen)
		meta, err = encodeSidecar(sidecar{
			Version:    snapshotVersion,
			Dimension:  x.cfg.Dimension,
			Generation: gen[:],
			Entries:    entries,
		})
	}
	count := len(entries)
	x.mu.RUnlock()
	if err != nil {
		return err
	}

	if x.cfg.Sealer != nil {
		sealed, err := x.cfg.Sealer.Seal(blob, sealedAAD)
		if err != nil {
			return fmt.Errorf("seal index: %w", err)
		}
		if err := writeFileAtomic(x.cfg.Dir, SealedFile, sealed); err != nil {
			return err
		}
		for _, name := range []string{MatrixFile, SidecarFile} {
			if err := os.Remove(filepath.Join(x.cfg.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove plaintext %s: %w", name, err)
			}
		}
		x.markSaved(changes)
		logger.Debug("vector index: saved %d sealed vectors", count)
		return nil
	}

	if err := writeFileAtomic(x.cfg.Dir, SidecarFile, meta); err != nil {
		return err
	}
	if err := writeFileAtomic(x.cfg.Dir, MatrixFile, matrix); err != nil {
		return err
	}
	x.markSaved(changes)
	logger.Debug("vector index: saved %d plaintext vectors", count)
	return nil
}

// markSaved records that the state numbered changes is on disk. A later
// mutation that raced with the write keeps the index dirty.
func (x *Index) markSaved(changes uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if changes > x.saved {
		x.saved = changes
	}
}

// Load replaces the in-memory index with the persisted one. The current
// contents are kept unless the result state is Loaded.
func (x *Index) Load(_ context.Context) (driven.LoadResult, error) {
	if x.cfg.Dir == "" {
		return driven.LoadResult{}, fmt.Errorf("%w: index has no directory", domain.ErrInvalidInput)
	}

	var (
		snap   snapshot
		result driven.LoadResult
		err    error
	)
	if x.cfg.Sealer != nil {
		snap, result, err = x.readSealed()
	} else {
		snap, result, err = x.readPlain()
	}
	if err != nil || result.State != driven.LoadStateLoaded {
		if result.State == driven.LoadStateCorrupt {
			logger.Warn("vector index: unreadable: %v", result.Reason)
		}
		return result, err
	}

	if snap.Dimension != x.cfg.Dimension {
		return driven.LoadResult{}, fmt.Errorf("%w: persisted index has %d dimensions, configured %d",
			domain.ErrDimensionMismatch, snap.Dimension, x.cfg.Dimension)
	}
	if reason := validateSnapshot(snap); reason != nil {
		logger.Warn("vector index: unreadable: %v", reason)
		return driven.LoadResult{State: driven.LoadStateCorrupt, Reason: reason}, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = snap.Vectors
	x.entries = snap.Entries
	x.reindex()
	x.changes++
	x.saved = x.changes
	if err := x.checkAlignment(); err != nil {
		return driven.LoadResult{}, err
	}
	logger.Debug("vector index: loaded %d vectors", len(x.vectors))
	return driven.LoadResult{State: driven.LoadStateLoaded, Count: len(x.vectors)}, nil
}

func (x *Index) readSealed() (snapshot, driven.LoadResult, error) {
	data, err := os.ReadFile(filepath.Join(x.cfg.Dir, SealedFile))
	if errors.Is(err, os.ErrNotExist) {
		if fileExists(filepath.Join(x.cfg.Dir, MatrixFile)) {
			return snapshot{}, corrupt(fmt.Errorf("%w: found %s", domain.ErrNotEncrypted, MatrixFile)), nil
		}
		return snapshot{}, driven.LoadResult{State: driven.LoadStateNotFound}, nil
	}
	if err != nil {
		return snapshot{}, driven.LoadResult{}, fmt.Errorf("read sealed index: %w", err)
	}

	plain, err := x.cfg.Sealer.Open(data, sealedAAD)
	if err != nil {
		return snapshot{}, corrupt(err), nil
	}
	snap, err := decodeSnapshot(plain)
	if err != nil {
		return snapshot{}, corrupt(err), nil
	}
	return snap, driven.LoadResult{State: driven.LoadStateLoaded}, nil
}

func (x *Index) readPlain() (snapshot, driven.LoadResult, error) {
	matrixData, err := os.ReadFile(filepath.Join(x.cfg.Dir, MatrixFile))
	if errors.Is(err, os.ErrNotExist) {
		if fileExists(filepath.Join(x.cfg.Dir, SealedFile)) {
			return snapshot{}, corrupt(fmt.Errorf("%w: sealed index found but encryption is disabled", domain.ErrWrongKey)), nil
		}
		return snapshot{}, driven.LoadResult{State: driven.LoadStateNotFound}, nil
	}
	if err != nil {
		return snapshot{}, driven.LoadResult{}, fmt.Errorf("read index matrix: %w", err)
	}
	metaData, err := os.ReadFile(filepath.Join(x.cfg.Dir, SidecarFile))
	if errors.Is(err, os.ErrNotExist) {
		return snapshot{}, corrupt(fmt.Errorf("%w: metadata sidecar missing", domain.ErrCorrupt)), nil
	}
	if err != nil {
		return snapshot{}, driven.LoadResult{}, fmt.Errorf("read index metadata: %w", err)
	}

	meta, err := decodeSidecar(metaData)
	if err != nil {
		return snapshot{}, corrupt(err), nil
	}
	if meta.Dimension != x.cfg.Dimension {
		return snapshot{}, driven.LoadResult{}, fmt.Errorf("%w: persisted index has %d dimensions, configured %d",
			domain.ErrDimensionMismatch, meta.Dimension, x.cfg.Dimension)
	}
	vectors, header, err := decodeMatrix(matrixData, x.cfg.Dimension)
	if err != nil {
		return snapshot{}, corrupt(err), nil
	}
	if !bytes.Equal(header.Generation[:], meta.Generation) {
		return snapshot{}, corrupt(fmt.Errorf("%w: matrix and metadata sidecar come from different saves",
			domain.ErrCorrupt)), nil
	}
	return snapshot{
		Version:   meta.Version,
		Dimension: header.Dimension,
		Entries:   meta.Entries,
		Vectors:   vectors,
	}, driven.LoadResult{State: driven.LoadStateLoaded}, nil
}

// validateSnapshot checks alignment and per-vector dimensions.
func validateSnapshot(s snapshot) error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: snapshot version %d", domain.ErrCorrupt, s.Version)
	}
	if len(s.Vectors) != len(s.Entries) {
		return fmt.Errorf("%w: %w: %d vectors, %d entries",
			domain.ErrCorrupt, domain.ErrIndexAlignment, len(s.Vectors), len(s.Entries))
	}
	seen := make(map[string]bool, len(s.Entries))
	for i, v := range s.Vectors {
		if len(v) != s.Dimension {
			return fmt.Errorf("%w: vector %d has %d dimensions", domain.ErrCorrupt, i, len(v))
		}
		id := s.Entries[i].ChunkID
		if id == "" || seen[id] {
			return fmt.Errorf("%w: duplicate or empty chunk id at %d", domain.ErrCorrupt, i)
		}
		seen[id] = true
	}
	return nil
}

func corrupt(reason error) driven.LoadResult {
	return driven.LoadResult{State: driven.LoadStateCorrupt, Reason: reason}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeFileAtomic writes data to a temporary file in dir and renames it
// over name, so readers see either the old or the new file.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
