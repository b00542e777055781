package services

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// Re-ranking weights.
const (
	rerankScoreWeight    = 0.5
	rerankCoverageWeight = 0.3
	rerankLengthWeight   = 0.2
)

// Preferred chunk length range, in characters.
const (
	preferredMinLength = 200
	preferredMaxLength = 1000
)

// Rerank rescales results by original score, query term coverage and a
// preference for medium-length text. Scores and ranks are overwritten; ties
// keep input order. A positive topK truncates the output.
func Rerank(query string, results []domain.RetrievalResult, topK int) []domain.RetrievalResult {
	if len(results) == 0 {
		return results
	}

	terms := distinctTerms(query)
	out := make([]domain.RetrievalResult, len(results))
	for i, res := range results {
		res.Score = rerankScoreWeight*res.Score +
			rerankCoverageWeight*termCoverage(terms, res.Content) +
			rerankLengthWeight*lengthPreference(utf8.RuneCountInString(res.Content))
		out[i] = res
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	for i := range out {
		out[i].Rank = i
	}
	return out
}

// termCoverage is the share of terms found as substrings of the text.
func termCoverage(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

func lengthPreference(length int) float64 {
	switch {
	case length < preferredMinLength:
		return float64(length) / preferredMinLength
	case length <= preferredMaxLength:
		return 1
	default:
		return math.Max(0.5, float64(preferredMaxLength)/float64(length))
	}
}

func distinctTerms(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}
