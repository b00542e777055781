// Package chunker provides the recursive separator-based chunking processor.
package chunker

import (
	"context"
	"maps"
	"strconv"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/logger"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 2048

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Processor splits document text into overlapping chunks.
// It implements the PostProcessor interface. Output is deterministic
// for a fixed text, chunk size and overlap.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Overlap must stay below chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document text into chunks.
// Input chunks are ignored; this processor creates new chunks from document text.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	return p.Chunk(doc), nil
}

// Chunk splits a document. Chunk ids are derived from the document id and
// ordinal, and every chunk records the final chunk count.
func (p *Processor) Chunk(doc *domain.Document) []domain.Chunk {
	texts := splitter{size: p.chunkSize, overlap: p.overlap}.split(doc.Text)
	if len(texts) == 0 {
		logger.Debug("chunker: document %s is empty", doc.ID)
		return nil
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		meta := maps.Clone(doc.Metadata)
		if meta == nil {
			meta = make(map[string]string, 4)
		}
		meta[domain.MetaDocumentID] = doc.ID
		meta[domain.MetaChunkIndex] = strconv.Itoa(i)
		meta[domain.MetaChunkCount] = strconv.Itoa(len(texts))
		meta[domain.MetaChunkSize] = strconv.Itoa(runeLen(text))

		chunks[i] = domain.Chunk{
			ID:             domain.ChunkID(doc.ID, i),
			DocumentID:     doc.ID,
			Content:        text,
			Index:          i,
			Count:          len(texts),
			Classification: doc.Classification,
			Metadata:       meta,
		}
	}

	logger.Debug("chunker: document %s -> %d chunks (size=%d overlap=%d)", doc.ID, len(chunks), p.chunkSize, p.overlap)
	return chunks
}
