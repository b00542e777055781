package normalisers

import (
	"github.com/custodia-labs/bastion/internal/normalisers/html"
	"github.com/custodia-labs/bastion/internal/normalisers/markdown"
	"github.com/custodia-labs/bastion/internal/normalisers/plaintext"
)

// RegisterDefaults registers the built-in text, markdown and HTML
// normalisers.
func RegisterDefaults(r *Registry) {
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
}
