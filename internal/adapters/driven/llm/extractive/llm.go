// Package extractive provides an offline LLMService that answers by quoting
// the context sentences that share the most terms with the query.
package extractive

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// ModelName identifies answers produced by this generator.
const ModelName = "extractive"

// DefaultMaxSentences caps how many sentences an answer quotes.
const DefaultMaxSentences = 3

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "with": true, "tell": true,
	"me": true, "about": true, "there": true, "any": true,
}

// LLMService implements driven.LLMService without a model.
type LLMService struct {
	maxSentences int
}

// NewLLMService creates an extractive generator quoting at most
// maxSentences sentences. Zero means DefaultMaxSentences.
func NewLLMService(maxSentences int) *LLMService {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &LLMService{maxSentences: maxSentences}
}

type sentence struct {
	text   string
	source string
	order  int
	score  int
}

// Generate reads the CONTEXT and USER QUERY sections of a rendered prompt
// and returns the best matching sentences, followed by their sources.
// When no sentence shares a query term the answer is
// domain.InsufficientInformation.
func (s *LLMService) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	contextText, query := splitPrompt(prompt)
	terms := queryTerms(query)
	if len(terms) == 0 || strings.TrimSpace(contextText) == "" {
		return domain.InsufficientInformation, nil
	}

	var candidates []sentence
	source := ""
	seen := make(map[string]bool)
	for _, line := range strings.Split(contextText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if name, ok := strings.CutPrefix(line, "[Source: "); ok {
				source = strings.TrimSuffix(name, "]")
			}
			continue
		}
		for _, text := range splitSentences(line) {
			if seen[text] {
				continue
			}
			seen[text] = true
			score := overlap(text, terms)
			if score == 0 {
				continue
			}
			candidates = append(candidates, sentence{text: text, source: source, order: len(candidates), score: score})
		}
	}
	if len(candidates) == 0 {
		return domain.InsufficientInformation, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > s.maxSentences {
		candidates = candidates[:s.maxSentences]
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].order < candidates[j].order
	})

	var b strings.Builder
	var sources []string
	cited := make(map[string]bool)
	for i, c := range candidates {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.text)
		if c.source != "" && !cited[c.source] {
			cited[c.source] = true
			sources = append(sources, c.source)
		}
	}
	for _, src := range sources {
		b.WriteString(" [Source: " + src + "]")
	}
	return b.String(), nil
}

// splitPrompt returns the text between the context and query markers and
// the text between the query and assistant markers.
func splitPrompt(prompt string) (contextText, query string) {
	ci := strings.Index(prompt, domain.PromptContextMarker)
	qi := strings.LastIndex(prompt, domain.PromptQueryMarker)
	if ci < 0 || qi < 0 || qi < ci {
		return "", ""
	}
	contextText = prompt[ci+len(domain.PromptContextMarker) : qi]
	query = prompt[qi+len(domain.PromptQueryMarker):]
	if ai := strings.LastIndex(query, domain.PromptAssistantMarker); ai >= 0 {
		query = query[:ai]
	}
	return contextText, strings.TrimSpace(query)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func queryTerms(query string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range words(query) {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		terms[w] = true
	}
	return terms
}

// overlap counts distinct query terms present in text.
func overlap(text string, terms map[string]bool) int {
	found := make(map[string]bool)
	for _, w := range words(text) {
		if terms[w] {
			found[w] = true
		}
	}
	return len(found)
}

// splitSentences breaks a line after '.', '!' or '?' followed by a space.
func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '.', '!', '?':
			if i+1 == len(line) || line[i+1] == ' ' {
				if s := strings.TrimSpace(line[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(line[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// ModelName returns the generator name.
func (s *LLMService) ModelName() string {
	return ModelName
}

// Ping always succeeds.
func (s *LLMService) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
