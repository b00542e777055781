package postprocessors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Builder constructs a chunk processor from its [pipeline.<name>] table in
// config.toml. A nil table means defaults.
type Builder func(cfg map[string]any) (driven.PostProcessor, error)

// Registry resolves processor names from configuration to builders.
type Registry struct {
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register binds name to builder, replacing any earlier binding.
func (r *Registry) Register(name string, builder Builder) {
	r.builders[name] = builder
}

// Build constructs the processor registered as name. The built processor
// must report the same name so pipeline errors point at the config entry.
func (r *Registry) Build(name string, cfg map[string]any) (driven.PostProcessor, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown processor %q (available: %s)",
			domain.ErrInvalidInput, name, strings.Join(r.Names(), ", "))
	}
	p, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("build processor %s: %w", name, err)
	}
	if p.Name() != name {
		return nil, fmt.Errorf("%w: processor registered as %q reports name %q",
			domain.ErrInvalidInput, name, p.Name())
	}
	return p, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names lists registered processors in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
