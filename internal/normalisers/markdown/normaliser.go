// Package markdown normalises Markdown files to plain text.
package markdown

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Normalise strips Markdown syntax and keeps the prose. Fenced code is kept
// without its fences since it often carries the facts being asked about.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	return &driven.NormaliseResult{
		Text:  stripMarkdown(content),
		Title: title(content, raw.URI),
	}, nil
}

var (
	fences       = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	strong       = regexp.MustCompile(`\*{1,2}([^*\n]+?)\*{1,2}`)
	underscored  = regexp.MustCompile(`(?m)(^|[\s(])_{1,2}([^_\n]+?)_{1,2}([\s).,;:!?]|$)`)
	blockquotes  = regexp.MustCompile(`(?m)^>[ \t]?`)
	rules        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	bullets      = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numbered     = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	firstHeading = regexp.MustCompile(`(?m)^#[ \t]+(.+)$`)
)

// stripMarkdown removes markup line by line. Underscores only count as
// emphasis at word boundaries so identifiers like radar_specs_v2 survive.
func stripMarkdown(content string) string {
	content = fences.ReplaceAllString(content, "")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = rules.ReplaceAllString(content, "")
	content = headings.ReplaceAllString(content, "")
	content = blockquotes.ReplaceAllString(content, "")
	content = bullets.ReplaceAllString(content, "")
	content = numbered.ReplaceAllString(content, "")
	content = strong.ReplaceAllString(content, "$1")
	content = underscored.ReplaceAllString(content, "$1$2$3")
	content = blankRuns.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// title returns the first level one heading, or the file name.
func title(content, uri string) string {
	if m := firstHeading.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	filename := filepath.Base(uri)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
