package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// RRFConstant dampens the contribution of top ranks in reciprocal rank fusion.
const RRFConstant = 60

// Retriever returns ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error)
}

// Ensure both retrievers implement the interface.
var (
	_ Retriever = (*SemanticRetriever)(nil)
	_ Retriever = (*HybridRetriever)(nil)
)

// SemanticRetriever ranks chunks by vector similarity.
type SemanticRetriever struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	store    driven.ChunkStore
}

// NewSemanticRetriever creates a semantic retriever. The store resolves full
// chunk text and may be nil, in which case the index preview is used.
func NewSemanticRetriever(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	store driven.ChunkStore,
) *SemanticRetriever {
	return &SemanticRetriever{embedder: embedder, index: index, store: store}
}

// Retrieve embeds the query, searches the index and drops results below
// the threshold.
func (r *SemanticRetriever) Retrieve(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) ([]domain.RetrievalResult, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}

	logger.Debug("Semantic retrieval: top_k=%d threshold=%.3f ceiling=%s", opts.TopK, opts.Threshold, opts.Ceiling)
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}

	hits, err := r.index.Search(ctx, embedding, driven.VectorQuery{
		TopK:    opts.TopK,
		Ceiling: opts.Ceiling,
		Filters: opts.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("Semantic retrieval: %d index hits", len(hits))

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < opts.Threshold {
			continue
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:        hit.ChunkID,
			Content:        r.resolveContent(ctx, hit),
			Score:          hit.Similarity,
			Classification: hit.Classification,
			Metadata:       hit.Metadata,
			Rank:           len(results),
		})
	}
	return results, nil
}

// resolveContent prefers the stored chunk text over the index preview.
func (r *SemanticRetriever) resolveContent(ctx context.Context, hit driven.VectorHit) string {
	if r.store == nil {
		return hit.Preview
	}
	chunk, err := r.store.GetChunk(ctx, hit.ChunkID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Chunk lookup failed for %s, using preview: %v", hit.ChunkID, err)
		} else {
			logger.Debug("Chunk %s missing from store, using preview", hit.ChunkID)
		}
		return hit.Preview
	}
	return chunk.Content
}

// HybridRetriever fuses semantic results with keyword search results.
type HybridRetriever struct {
	semantic       *SemanticRetriever
	store          driven.ChunkStore
	semanticWeight float64
}

// NewHybridRetriever creates a hybrid retriever. semanticWeight is the share
// given to the semantic list; the keyword list gets the rest.
func NewHybridRetriever(semantic *SemanticRetriever, store driven.ChunkStore, semanticWeight float64) *HybridRetriever {
	return &HybridRetriever{semantic: semantic, store: store, semanticWeight: semanticWeight}
}

// Retrieve runs both searches over 2×TopK candidates and fuses them. A
// keyword search failure degrades to semantic results only.
func (r *HybridRetriever) Retrieve(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) ([]domain.RetrievalResult, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}
	pool := opts.TopK * 2

	semanticOpts := opts
	semanticOpts.TopK = pool
	// The cutoff applies to fused scores only, so keep every semantic hit,
	// negative cosines included.
	semanticOpts.Threshold = math.Inf(-1)
	semantic, err := r.semantic.Retrieve(ctx, query, semanticOpts)
	if err != nil {
		return nil, err
	}

	keyword, err := r.keywordSearch(ctx, query, pool, opts)
	if err != nil {
		logger.Warn("Hybrid retrieval: keyword search unavailable, using semantic results only: %v", err)
		keyword = nil
	}
	logger.Debug("Hybrid retrieval: fusing %d semantic + %d keyword results", len(semantic), len(keyword))

	fused := FuseRRF([]RankedList{
		{Results: semantic, Weight: r.semanticWeight},
		{Results: keyword, Weight: 1 - r.semanticWeight},
	}, RRFConstant)

	out := make([]domain.RetrievalResult, 0, min(len(fused), opts.TopK))
	for _, res := range fused {
		if res.Score < opts.Threshold {
			continue
		}
		res.Rank = len(out)
		out = append(out, res)
		if len(out) == opts.TopK {
			break
		}
	}
	return out, nil
}

// keywordSearch runs full-text search and applies the ceiling and filters,
// which the store does not enforce.
func (r *HybridRetriever) keywordSearch(
	ctx context.Context, query string, limit int, opts domain.RetrievalOptions,
) ([]domain.RetrievalResult, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: no metadata store", domain.ErrStoreUnavailable)
	}
	chunks, err := r.store.SearchText(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RetrievalResult, 0, len(chunks))
	for _, c := range chunks {
		if !opts.Ceiling.IsAtLeast(c.Classification) {
			continue
		}
		if !domain.MatchesFilters(c.Metadata, opts.Filters) {
			continue
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:        c.ID,
			Content:        c.Content,
			Classification: c.Classification,
			Metadata:       c.Metadata,
			Rank:           len(results),
		})
	}
	return results, nil
}

// RankedList is one ordered input to FuseRRF.
type RankedList struct {
	Results []domain.RetrievalResult
	Weight  float64
}

// FuseRRF merges ranked lists by weighted reciprocal rank fusion. A result
// at 0-based position r in a list contributes weight/(k+r); contributions
// for the same chunk id are summed. Output is sorted by fused score with
// ties kept in first-appearance order. The first occurrence of a chunk
// supplies its content and metadata.
func FuseRRF(lists []RankedList, k int) []domain.RetrievalResult {
	var (
		order  []string
		byID   = make(map[string]domain.RetrievalResult)
		scores = make(map[string]float64)
	)
	for _, list := range lists {
		for rank, res := range list.Results {
			if _, ok := byID[res.ChunkID]; !ok {
				byID[res.ChunkID] = res
				order = append(order, res.ChunkID)
			}
			scores[res.ChunkID] += list.Weight / float64(k+rank)
		}
	}

	fused := make([]domain.RetrievalResult, len(order))
	for i, id := range order {
		res := byID[id]
		res.Score = scores[id]
		fused[i] = res
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	for i := range fused {
		fused[i].Rank = i
	}
	return fused
}
