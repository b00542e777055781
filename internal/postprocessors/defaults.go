package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/postprocessors/chunker"
)

// RegisterDefaults installs the processors shipped with Bastion.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
}

// BuildPipeline builds cfg.Processors in order. A pipeline must produce
// chunks, so an empty list is rejected.
func BuildPipeline(r *Registry, cfg domain.PipelineConfig) (*Pipeline, error) {
	if len(cfg.Processors) == 0 {
		return nil, fmt.Errorf("%w: pipeline has no processors", domain.ErrInvalidInput)
	}
	pipeline := NewPipeline()
	for _, name := range cfg.Processors {
		proc, err := r.Build(name, cfg.GetProcessorConfig(name))
		if err != nil {
			return nil, err
		}
		pipeline.Add(proc)
	}
	return pipeline, nil
}

// buildChunker reads chunk_size and overlap, both in characters. Missing
// keys keep the chunker defaults; an overlap that would not let the
// chunker advance is rejected rather than silently shrunk.
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	size := chunker.DefaultChunkSize
	if v := getIntFromConfig(cfg, "chunk_size"); v > 0 {
		size = v
	}
	overlap := chunker.DefaultChunkOverlap
	if _, ok := cfg["overlap"]; ok {
		overlap = getIntFromConfig(cfg, "overlap")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunker overlap %d must be in [0, %d)", domain.ErrInvalidInput, overlap, size)
	}
	return chunker.New(chunker.WithChunkSize(size), chunker.WithOverlap(overlap)), nil
}

// getIntFromConfig reads an integer that TOML may have decoded as int64
// and JSON as float64. Anything else reads as 0.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
