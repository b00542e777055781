package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// mockAuditLog implements driven.AuditLog in memory.
type mockAuditLog struct {
	mu        sync.Mutex
	events    []domain.AuditEvent
	appendErr error
	report    domain.AuditVerifyReport
}

func (m *mockAuditLog) Append(_ context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditLog) Read(_ context.Context, limit int) (domain.AuditReadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return domain.AuditReadResult{Events: append([]domain.AuditEvent(nil), events...)}, nil
}

func (m *mockAuditLog) Verify(_ context.Context) (domain.AuditVerifyReport, error) {
	return m.report, nil
}

func (m *mockAuditLog) Close() error {
	return nil
}

func (m *mockAuditLog) kinds() []domain.AuditEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]domain.AuditEventKind, len(m.events))
	for i, e := range m.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (m *mockAuditLog) last() domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return domain.AuditEvent{}
	}
	return m.events[len(m.events)-1]
}

// mockEmbedder implements driven.EmbeddingService. Every text maps to the
// same vector unless vectors names it.
type mockEmbedder struct {
	vectors map[string][]float32
	vector  []float32
	err     error
	batches int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	if m.vector != nil {
		return m.vector, nil
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batches++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int             { return 3 }
func (m *mockEmbedder) ModelName() string           { return "mock" }
func (m *mockEmbedder) Ping(_ context.Context) error { return m.err }
func (m *mockEmbedder) Close() error                { return nil }

// mockVectorIndex implements driven.VectorIndex with canned hits.
type mockVectorIndex struct {
	hits      []driven.VectorHit
	searchErr error
	lastQuery driven.VectorQuery

	added     []domain.Chunk
	addErr    error
	deleted   []string
	deleteErr error

	saves   int
	saveErr error
	dirty   bool

	loadResult driven.LoadResult
	loadErr    error
	loads      int
}

func (m *mockVectorIndex) Add(_ context.Context, vectors [][]float32, chunks []domain.Chunk) error {
	if m.addErr != nil {
		return m.addErr
	}
	if len(vectors) != len(chunks) {
		return domain.ErrIndexAlignment
	}
	m.added = append(m.added, chunks...)
	m.dirty = m.dirty || len(chunks) > 0
	return nil
}

func (m *mockVectorIndex) DeleteDocument(_ context.Context, documentID string) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, documentID)
	kept := m.added[:0]
	removed := 0
	for _, c := range m.added {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.added = kept
	m.dirty = m.dirty || removed > 0
	return removed, nil
}

func (m *mockVectorIndex) Search(_ context.Context, _ []float32, q driven.VectorQuery) ([]driven.VectorHit, error) {
	m.lastQuery = q
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []driven.VectorHit
	for _, h := range m.hits {
		if !q.Ceiling.IsAtLeast(h.Classification) || !domain.MatchesFilters(h.Metadata, q.Filters) {
			continue
		}
		out = append(out, h)
		if len(out) == q.TopK {
			break
		}
	}
	return out, nil
}

func (m *mockVectorIndex) Save(_ context.Context) error {
	m.saves++
	if m.saveErr == nil {
		m.dirty = false
	}
	return m.saveErr
}

func (m *mockVectorIndex) Load(_ context.Context) (driven.LoadResult, error) {
	m.loads++
	return m.loadResult, m.loadErr
}

func (m *mockVectorIndex) Dirty() bool    { return m.dirty }
func (m *mockVectorIndex) Len() int       { return len(m.added) }
func (m *mockVectorIndex) Dimension() int { return 3 }
func (m *mockVectorIndex) Close() error   { return nil }

func (m *mockVectorIndex) Stats() domain.IndexStats {
	return domain.IndexStats{Vectors: len(m.added), Dimension: 3}
}

// mockChunkStore implements driven.ChunkStore over a map.
type mockChunkStore struct {
	chunks     map[string]domain.Chunk
	textHits   []domain.Chunk
	searchErr  error
	getErr     error
	replaceErr error
	replaced   []string
}

func newMockChunkStore(chunks ...domain.Chunk) *mockChunkStore {
	m := &mockChunkStore{chunks: make(map[string]domain.Chunk)}
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return m
}

func (m *mockChunkStore) InsertChunks(_ context.Context, chunks []domain.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *mockChunkStore) ReplaceDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	for id, c := range m.chunks {
		if c.DocumentID == doc.ID {
			delete(m.chunks, id)
		}
	}
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	m.replaced = append(m.replaced, doc.ID)
	return nil
}

func (m *mockChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *mockChunkStore) SearchText(_ context.Context, _ string, limit int) ([]domain.Chunk, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit < len(m.textHits) {
		return m.textHits[:limit], nil
	}
	return m.textHits, nil
}

func (m *mockChunkStore) ListDocuments(_ context.Context) ([]domain.DocumentSummary, error) {
	return nil, nil
}

func (m *mockChunkStore) DeleteDocument(_ context.Context, id string) error {
	for cid, c := range m.chunks {
		if c.DocumentID == id {
			delete(m.chunks, cid)
		}
	}
	return nil
}

func (m *mockChunkStore) CountChunks(_ context.Context) (int, error) { return len(m.chunks), nil }
func (m *mockChunkStore) Close() error                              { return nil }

// mockLLM implements driven.LLMService with a fixed answer.
type mockLLM struct {
	answer  string
	err     error
	prompts []string
	opts    []driven.GenerateOptions
}

func (m *mockLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func (m *mockLLM) ModelName() string           { return "mock" }
func (m *mockLLM) Ping(_ context.Context) error { return m.err }
func (m *mockLLM) Close() error                { return nil }

// mockRetriever implements Retriever with canned results.
type mockRetriever struct {
	results  []domain.RetrievalResult
	err      error
	calls    int
	lastOpts domain.RetrievalOptions
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error) {
	m.calls++
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.RetrievalResult
	for _, r := range m.results {
		if opts.Ceiling.IsAtLeast(r.Classification) {
			out = append(out, r)
		}
	}
	return out, nil
}

// mockChunker implements driven.PostProcessorPipeline by splitting on
// blank lines.
type mockChunker struct {
	err error
}

func (m *mockChunker) Process(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	var parts []string
	for _, part := range strings.Split(doc.Text, "\n\n") {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	chunks := make([]domain.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = domain.Chunk{
			ID:         domain.ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Content:    part,
			Index:      i,
			Count:      len(parts),
			Metadata:   map[string]string{domain.MetaSource: doc.Source(), domain.MetaDocumentID: doc.ID},
		}
	}
	return chunks, nil
}

// mockPromptStore implements driven.PromptStore.
type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p, nil
}

func (m *mockPromptStore) Reload() {}

// newTestGate registers the default users and records auth failures.
func newTestGate(t interface{ Fatalf(string, ...any) }, log driven.AuditLog) *Gate {
	gate := NewGate(nil)
	gate.SetAuditLog(log)
	if err := gate.RegisterUsers(domain.DefaultUsers()); err != nil {
		t.Fatalf("register users: %v", err)
	}
	return gate
}

// mockLoader serves documents keyed by path.
type mockLoader struct {
	docs     map[string]*domain.Document
	expanded []string
	err      error
	defaults []map[string]string
}

func (m *mockLoader) Load(_ context.Context, path string, defaults map[string]string) (*domain.Document, error) {
	m.defaults = append(m.defaults, defaults)
	doc, ok := m.docs[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w: classification", path, domain.ErrMissingMetadata)
	}
	return doc, nil
}

func (m *mockLoader) Supports(_ string) bool { return true }

func (m *mockLoader) Expand(_ []string) ([]string, error) {
	return m.expanded, m.err
}
