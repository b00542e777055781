package postprocessors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/postprocessors/chunker"
)

type namedProcessor struct {
	name string
}

func (m *namedProcessor) Name() string { return m.name }
func (m *namedProcessor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	return chunks, nil
}

func builderFor(name string) Builder {
	return func(_ map[string]any) (driven.PostProcessor, error) {
		return &namedProcessor{name: name}, nil
	}
}

func TestRegistry_BuildRegistered(t *testing.T) {
	r := NewRegistry()
	var got map[string]any
	r.Register("dedupe", func(cfg map[string]any) (driven.PostProcessor, error) {
		got = cfg
		return &namedProcessor{name: "dedupe"}, nil
	})

	proc, err := r.Build("dedupe", map[string]any{"window": 3})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if proc.Name() != "dedupe" {
		t.Errorf("expected dedupe, got %q", proc.Name())
	}
	if got["window"] != 3 {
		t.Errorf("builder did not receive its table, got %v", got)
	}
}

func TestRegistry_BuildUnknownListsAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register("chunker", builderFor("chunker"))
	r.Register("dedupe", builderFor("dedupe"))

	_, err := r.Build("stemmer", nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "chunker, dedupe") {
		t.Errorf("error should list available processors: %v", err)
	}
}

func TestRegistry_BuildNameMismatch(t *testing.T) {
	r := NewRegistry()
	r.Register("chunker", builderFor("splitter"))

	_, err := r.Build("chunker", nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for mismatched name, got %v", err)
	}
}

func TestRegistry_BuilderError(t *testing.T) {
	boom := errors.New("bad table")
	r := NewRegistry()
	r.Register("chunker", func(_ map[string]any) (driven.PostProcessor, error) {
		return nil, boom
	})

	_, err := r.Build("chunker", nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped builder error, got %v", err)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register("chunker", builderFor("other"))
	r.Register("chunker", builderFor("chunker"))

	if _, err := r.Build("chunker", nil); err != nil {
		t.Errorf("later registration should win: %v", err)
	}
}

func TestRegistry_HasAndNames(t *testing.T) {
	r := NewRegistry()
	if r.Has("chunker") || len(r.Names()) != 0 {
		t.Fatal("new registry should be empty")
	}

	r.Register("zeta", builderFor("zeta"))
	r.Register("alpha", builderFor("alpha"))

	if !r.Has("zeta") {
		t.Error("expected zeta to be registered")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("expected sorted [alpha zeta], got %v", names)
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	if !r.Has("chunker") {
		t.Error("expected 'chunker' to be registered after RegisterDefaults")
	}
}

func TestBuildChunker_WithConfig(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	cfg := map[string]any{
		"chunk_size": 500,
		"overlap":    100,
	}

	proc, err := r.Build("chunker", cfg)
	if err != nil {
		t.Fatalf("Build chunker failed: %v", err)
	}

	if proc.Name() != "chunker" {
		t.Errorf("expected name 'chunker', got %q", proc.Name())
	}
}

func TestBuildChunker_WithNilConfig(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	proc, err := r.Build("chunker", nil)
	if err != nil {
		t.Fatalf("Build chunker with nil config failed: %v", err)
	}

	if proc.Name() != "chunker" {
		t.Errorf("expected name 'chunker', got %q", proc.Name())
	}
}

func TestGetIntFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      map[string]any
		key      string
		expected int
	}{
		{"int value", map[string]any{"size": 100}, "size", 100},
		{"int64 value", map[string]any{"size": int64(200)}, "size", 200},
		{"float64 value", map[string]any{"size": float64(300)}, "size", 300},
		{"string value", map[string]any{"size": "400"}, "size", 0},
		{"missing key", map[string]any{"other": 100}, "size", 0},
		{"nil config", nil, "size", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getIntFromConfig(tt.cfg, tt.key)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestBuildChunker_OverlapOmitted(t *testing.T) {
	proc, err := buildChunker(map[string]any{"chunk_size": 400})
	if err != nil {
		t.Fatalf("buildChunker failed: %v", err)
	}
	c := proc.(*chunker.Processor)
	if c.ChunkSize() != 400 {
		t.Errorf("expected chunk size 400, got %d", c.ChunkSize())
	}
	if c.Overlap() != chunker.DefaultChunkOverlap {
		t.Errorf("missing overlap should keep the default, got %d", c.Overlap())
	}
}

func TestBuildChunker_RejectsOverlapAtOrAboveSize(t *testing.T) {
	for _, cfg := range []map[string]any{
		{"chunk_size": 100, "overlap": 100},
		{"chunk_size": 100, "overlap": 250},
		{"overlap": -1},
	} {
		if _, err := buildChunker(cfg); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("config %v: expected ErrInvalidInput, got %v", cfg, err)
		}
	}
}

func TestBuildPipeline(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	p, err := BuildPipeline(r, domain.PipelineConfigFor(domain.ChunkingSettings{Size: 30, Overlap: 5}))
	if err != nil {
		t.Fatalf("BuildPipeline failed: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 processor, got %d", p.Len())
	}

	doc, err := domain.NewDocument("d", strings.Repeat("alpha beta ", 10), map[string]string{
		domain.MetaSource:         "s",
		domain.MetaClassification: "UNCLASSIFIED",
		domain.MetaDocumentType:   "txt",
	})
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	chunks, err := p.Process(context.Background(), doc)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Errorf("expected several chunks, got %d", len(chunks))
	}

	if _, err := BuildPipeline(r, domain.PipelineConfig{}); err == nil {
		t.Error("expected error for empty pipeline")
	}
	if _, err := BuildPipeline(r, domain.PipelineConfig{Processors: []string{"stemmer"}}); err == nil {
		t.Error("expected error for unknown processor")
	}
}
