package services

import (
	"strings"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/logger"
)

// DefaultMinOverlap is the minimum share of response words that must
// appear in the context.
const DefaultMinOverlap = 0.30

// SafetyFilter flags answers that are not grounded in the supplied context.
type SafetyFilter struct {
	// Phrases are matched case-insensitively as substrings.
	Phrases []string

	// MinOverlap is the lowest accepted response-to-context word overlap.
	MinOverlap float64
}

// DefaultSafetyFilter returns a filter with the default phrases and overlap.
func DefaultSafetyFilter() SafetyFilter {
	return SafetyFilter{
		Phrases:    domain.DefaultHallucinationPhrases(),
		MinOverlap: DefaultMinOverlap,
	}
}

// NewSafetyFilter builds a filter from settings, falling back to defaults
// for empty fields.
func NewSafetyFilter(settings domain.SafetySettings) SafetyFilter {
	f := DefaultSafetyFilter()
	if len(settings.Phrases) > 0 {
		f.Phrases = settings.Phrases
	}
	if settings.MinOverlap > 0 {
		f.MinOverlap = settings.MinOverlap
	}
	return f
}

// CheckHallucination reports whether the response uses a hedging phrase or
// shares too few words with the context. Only the empty string passes
// without words; whitespace alone has zero overlap and is flagged.
func (f SafetyFilter) CheckHallucination(response, context string) bool {
	lower := strings.ToLower(response)
	for _, phrase := range f.Phrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			logger.Info("Safety filter: hedging phrase %q in answer", phrase)
			return true
		}
	}

	responseWords := wordSet(lower)
	if len(responseWords) == 0 {
		if response != "" {
			logger.Info("Safety filter: answer has no words")
		}
		return response != ""
	}
	contextWords := wordSet(strings.ToLower(context))
	shared := 0
	for w := range responseWords {
		if contextWords[w] {
			shared++
		}
	}
	overlap := float64(shared) / float64(len(responseWords))
	if overlap < f.MinOverlap {
		logger.Info("Safety filter: low context overlap %.2f", overlap)
		return true
	}
	return false
}

// ValidateResponse accepts the sentinel answer as-is. In strict mode a
// flagged answer is replaced by the sentinel and reported invalid.
func (f SafetyFilter) ValidateResponse(response, context string, strict bool) (bool, string) {
	if strings.Contains(strings.ToLower(response), strings.ToLower(domain.InsufficientInformation)) {
		return true, response
	}
	if strict && f.CheckHallucination(response, context) {
		return false, domain.InsufficientInformation
	}
	return true, response
}

func wordSet(text string) map[string]bool {
	fields := strings.Fields(text)
	set := make(map[string]bool, len(fields))
	for _, w := range fields {
		set[w] = true
	}
	return set
}
