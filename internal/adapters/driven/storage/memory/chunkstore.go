package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// ChunkStore is an in-memory implementation of driven.ChunkStore with a
// BM25 keyword index. Every write holds the lock for the whole batch.
type ChunkStore struct {
	mu        sync.RWMutex
	documents map[string]domain.DocumentSummary
	chunks    map[string]domain.Chunk
	terms     map[string]map[string]int // term -> chunk id -> frequency
	lengths   map[string]int            // chunk id -> token count
	totalLen  int
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		documents: make(map[string]domain.DocumentSummary),
		chunks:    make(map[string]domain.Chunk),
		terms:     make(map[string]map[string]int),
		lengths:   make(map[string]int),
	}
}

// InsertChunks upserts chunks by id.
func (s *ChunkStore) InsertChunks(_ context.Context, chunks []domain.Chunk) error {
	for i := range chunks {
		if chunks[i].ID == "" {
			return fmt.Errorf("%w: chunk id is empty", domain.ErrInvalidInput)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		s.put(chunks[i])
	}
	return nil
}

// ReplaceDocument records doc and swaps its chunk set.
func (s *ChunkStore) ReplaceDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}
	for i := range chunks {
		if chunks[i].ID == "" {
			return fmt.Errorf("%w: chunk id is empty", domain.ErrInvalidInput)
		}
		if chunks[i].DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				domain.ErrInvalidInput, chunks[i].ID, chunks[i].DocumentID, doc.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeDocumentChunks(doc.ID)
	for i := range chunks {
		s.put(chunks[i])
	}
	s.documents[doc.ID] = domain.DocumentSummary{
		ID:             doc.ID,
		Source:         doc.Source(),
		DocumentType:   doc.DocumentType(),
		Classification: doc.Classification,
		Checksum:       doc.Checksum,
		ChunkCount:     len(chunks),
		IngestedAt:     doc.IngestedAt,
	}
	return nil
}

// GetChunk retrieves a chunk by id.
func (s *ChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	chunk.Metadata = maps.Clone(chunk.Metadata)
	return &chunk, nil
}

// SearchText ranks chunks by BM25, breaking ties by chunk id.
func (s *ChunkStore) SearchText(_ context.Context, query string, limit int) ([]domain.Chunk, error) {
	terms := uniqueTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.chunks)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(s.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		postings := s.terms[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		for id, tf := range postings {
			f := float64(tf)
			norm := 1 - bm25B + bm25B*float64(s.lengths[id])/avgLen
			scores[id] += idf * f * (bm25K1 + 1) / (f + bm25K1*norm)
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]domain.Chunk, len(ids))
	for i, id := range ids {
		chunk := s.chunks[id]
		chunk.Metadata = maps.Clone(chunk.Metadata)
		results[i] = chunk
	}
	return results, nil
}

// ListDocuments returns every recorded document ordered by source then id.
func (s *ChunkStore) ListDocuments(_ context.Context) ([]domain.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.DocumentSummary, 0, len(s.documents))
	for _, d := range s.documents {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Source != docs[j].Source {
			return docs[i].Source < docs[j].Source
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// DeleteDocument removes a document and its chunks.
func (s *ChunkStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeDocumentChunks(id)
	delete(s.documents, id)
	return nil
}

// CountChunks returns the number of stored chunks.
func (s *ChunkStore) CountChunks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close is a no-op.
func (s *ChunkStore) Close() error {
	return nil
}

// put indexes one chunk. Callers hold the write lock.
func (s *ChunkStore) put(chunk domain.Chunk) {
	s.remove(chunk.ID)
	chunk.Metadata = maps.Clone(chunk.Metadata)
	s.chunks[chunk.ID] = chunk

	tokens := tokenize(chunk.Content)
	s.lengths[chunk.ID] = len(tokens)
	s.totalLen += len(tokens)
	for _, tok := range tokens {
		postings, ok := s.terms[tok]
		if !ok {
			postings = make(map[string]int)
			s.terms[tok] = postings
		}
		postings[chunk.ID]++
	}
}

// remove drops one chunk from every structure. Callers hold the write lock.
func (s *ChunkStore) remove(id string) {
	chunk, ok := s.chunks[id]
	if !ok {
		return
	}
	for _, tok := range uniqueTerms(chunk.Content) {
		postings := s.terms[tok]
		delete(postings, id)
		if len(postings) == 0 {
			delete(s.terms, tok)
		}
	}
	s.totalLen -= s.lengths[id]
	delete(s.lengths, id)
	delete(s.chunks, id)
}

func (s *ChunkStore) removeDocumentChunks(documentID string) {
	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			s.remove(id)
		}
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTerms(text string) []string {
	tokens := tokenize(text)
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
