// Package postprocessors turns normalised documents into indexable chunks.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Pipeline runs chunk processors in configuration order and checks that
// the result is safe to index.
type Pipeline struct {
	processors []driven.PostProcessor
}

func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process hands the document to each processor in turn. The first one
// receives nil chunks. The final set must have unique ids, belong to doc
// and carry doc's classification.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		if chunks, err = processor.Process(ctx, doc, chunks); err != nil {
			return nil, fmt.Errorf("processor %s on %s: %w", processor.Name(), doc.ID, err)
		}
	}

	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if c.ID == "" || seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate or empty chunk id %q", domain.ErrInvalidInput, c.ID)
		}
		if c.DocumentID != "" && c.DocumentID != doc.ID {
			return nil, fmt.Errorf("%w: chunk %s belongs to document %s", domain.ErrInvalidInput, c.ID, c.DocumentID)
		}
		if c.Classification != doc.Classification {
			return nil, fmt.Errorf("%w: chunk %s is %s but document %s is %s",
				domain.ErrInvalidInput, c.ID, c.Classification, doc.ID, doc.Classification)
		}
		seen[c.ID] = true
	}

	return chunks, nil
}

func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

func (p *Pipeline) Len() int {
	return len(p.processors)
}
