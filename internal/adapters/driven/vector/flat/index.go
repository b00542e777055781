package flat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultOverFetch is the default search window multiplier.
const DefaultOverFetch = 3

// previewRunes bounds the chunk text kept alongside each vector.
const previewRunes = 200

// Config configures an index.
type Config struct {
	// Dir holds the persisted artifacts.
	Dir string

	// Dimension is the vector size. Required.
	Dimension int

	// OverFetch multiplies TopK before post-filtering. Minimum 3.
	OverFetch int

	// Sealer encrypts the persisted snapshot. Nil writes plaintext.
	Sealer driven.Sealer
}

// entry is the metadata stored at the same position as its vector.
type entry struct {
	ChunkID        string                `cbor:"1,keyasint"`
	DocumentID     string                `cbor:"2,keyasint"`
	Classification domain.Classification `cbor:"3,keyasint"`
	Metadata       map[string]string     `cbor:"4,keyasint"`
	Preview        string                `cbor:"5,keyasint"`
}

// Index is an in-memory exact vector index.
// vectors[i] and entries[i] always describe the same chunk.
type Index struct {
	cfg Config

	mu       sync.RWMutex
	vectors  [][]float32
	entries  []entry
	position map[string]int

	// changes counts mutations; saved is its value at the last successful
	// Load or Save.
	changes uint64
	saved   uint64
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if cfg.OverFetch == 0 {
		cfg.OverFetch = DefaultOverFetch
	}
	if cfg.OverFetch < DefaultOverFetch {
		return nil, fmt.Errorf("%w: over-fetch must be at least %d", domain.ErrInvalidInput, DefaultOverFetch)
	}
	return &Index{
		cfg:      cfg,
		position: make(map[string]int),
	}, nil
}

// Add inserts or replaces one vector per chunk.
func (x *Index) Add(_ context.Context, vectors [][]float32, chunks []domain.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrInvalidInput, len(vectors), len(chunks))
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != x.cfg.Dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, chunks[i].ID, len(v), x.cfg.Dimension)
		}
		n, ok := normalize(v)
		if !ok {
			return fmt.Errorf("%w: chunk %s has a zero or non-finite vector", domain.ErrInvalidInput, chunks[i].ID)
		}
		if chunks[i].ID == "" {
			return fmt.Errorf("%w: chunk id is empty", domain.ErrInvalidInput)
		}
		normalized[i] = n
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, c := range chunks {
		e := entry{
			ChunkID:        c.ID,
			DocumentID:     c.DocumentID,
			Classification: c.Classification,
			Metadata:       cloneMetadata(c.Metadata),
			Preview:        truncateRunes(c.Content, previewRunes),
		}
		if pos, ok := x.position[c.ID]; ok {
			x.vectors[pos] = normalized[i]
			x.entries[pos] = e
			continue
		}
		x.position[c.ID] = len(x.vectors)
		x.vectors = append(x.vectors, normalized[i])
		x.entries = append(x.entries, e)
	}
	if len(chunks) > 0 {
		x.changes++
	}
	return x.checkAlignment()
}

// DeleteDocument removes every vector belonging to the document.
func (x *Index) DeleteDocument(_ context.Context, documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := 0
	for i := range x.entries {
		if x.entries[i].DocumentID == documentID {
			continue
		}
		x.vectors[kept] = x.vectors[i]
		x.entries[kept] = x.entries[i]
		kept++
	}
	removed := len(x.entries) - kept
	if removed == 0 {
		return 0, nil
	}
	clear(x.vectors[kept:])
	clear(x.entries[kept:])
	x.vectors = x.vectors[:kept]
	x.entries = x.entries[:kept]
	x.reindex()
	x.changes++
	return removed, x.checkAlignment()
}

type scored struct {
	pos        int
	similarity float64
}

// Search scores every vector against the normalized query, then walks the
// over-fetch window in descending order applying the ceiling and filters.
func (x *Index) Search(_ context.Context, query []float32, q driven.VectorQuery) ([]driven.VectorHit, error) {
	if len(query) != x.cfg.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), x.cfg.Dimension)
	}
	if q.TopK <= 0 {
		return nil, nil
	}
	if !finite(query) {
		return nil, fmt.Errorf("%w: non-finite query vector", domain.ErrInvalidInput)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.vectors)
	if n == 0 {
		return nil, nil
	}
	// A zero vector has no direction and is similar to nothing.
	normalized, ok := normalize(query)
	if !ok {
		logger.Debug("vector index: zero query vector, no hits")
		return nil, nil
	}

	scores := make([]scored, n)
	for i, v := range x.vectors {
		scores[i] = scored{pos: i, similarity: dot(normalized, v)}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].similarity > scores[b].similarity
	})

	pool := min(q.TopK*x.cfg.OverFetch, n)
	hits := make([]driven.VectorHit, 0, q.TopK)
	for _, s := range scores[:pool] {
		e := x.entries[s.pos]
		if !q.Ceiling.IsAtLeast(e.Classification) {
			continue
		}
		if !domain.MatchesFilters(e.Metadata, q.Filters) {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:        e.ChunkID,
			Similarity:     s.similarity,
			Classification: e.Classification,
			Metadata:       cloneMetadata(e.Metadata),
			Preview:        e.Preview,
		})
		if len(hits) == q.TopK {
			break
		}
	}

	if len(hits) < q.TopK && pool < n {
		logger.Debug("vector index: over-fetch window of %d exhausted with %d of %d hits", pool, len(hits), q.TopK)
	}
	return hits, nil
}

// Dirty reports whether the index changed since it was last loaded or
// saved.
func (x *Index) Dirty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.changes != x.saved
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimension returns the configured vector size.
func (x *Index) Dimension() int {
	return x.cfg.Dimension
}

// Stats summarises the stored vectors.
func (x *Index) Stats() domain.IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	docs := make(map[string]struct{})
	byLevel := make(map[domain.Classification]int)
	for _, e := range x.entries {
		docs[e.DocumentID] = struct{}{}
		byLevel[e.Classification]++
	}
	return domain.IndexStats{
		Vectors:          len(x.vectors),
		Dimension:        x.cfg.Dimension,
		Documents:        len(docs),
		ByClassification: byLevel,
	}
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// checkAlignment verifies the parallel-array invariant. Callers hold the lock.
func (x *Index) checkAlignment() error {
	if len(x.vectors) != len(x.entries) || len(x.position) != len(x.entries) {
		return fmt.Errorf("%w: %d vectors, %d entries, %d ids",
			domain.ErrIndexAlignment, len(x.vectors), len(x.entries), len(x.position))
	}
	return nil
}

// reindex rebuilds the chunk id to position map. Callers hold the lock.
func (x *Index) reindex() {
	x.position = make(map[string]int, len(x.entries))
	for i, e := range x.entries {
		x.position[e.ChunkID] = i
	}
}

func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out, true
}

func finite(v []float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
