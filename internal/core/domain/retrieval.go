package domain

// RetrievalMode selects how a query is matched against the corpus.
type RetrievalMode string

// Available retrieval modes.
const (
	// RetrievalModeSemantic uses vector similarity only.
	RetrievalModeSemantic RetrievalMode = "semantic"

	// RetrievalModeHybrid fuses vector similarity with keyword search.
	RetrievalModeHybrid RetrievalMode = "hybrid"
)

// IsValid returns true if the retrieval mode is recognised.
func (m RetrievalMode) IsValid() bool {
	return m == RetrievalModeSemantic || m == RetrievalModeHybrid
}

// String returns the string representation.
func (m RetrievalMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m RetrievalMode) Description() string {
	switch m {
	case RetrievalModeSemantic:
		return "Semantic (vector similarity)"
	case RetrievalModeHybrid:
		return "Hybrid (semantic + keyword, reciprocal rank fusion)"
	default:
		return unknownDescription
	}
}

// RetrievalOptions configures a single retrieval.
type RetrievalOptions struct {
	// TopK is the maximum number of results.
	TopK int

	// Threshold drops results scoring below it.
	Threshold float64

	// Ceiling is the highest classification a result may carry.
	Ceiling Classification

	// Filters are exact-match metadata constraints.
	Filters map[string]string
}

// RetrievalResult is a scored chunk returned by a retriever.
type RetrievalResult struct {
	// ChunkID identifies the chunk in both the index and the metadata store.
	ChunkID string

	// Content is the resolved chunk text.
	Content string

	// Score is the similarity, fused or re-ranked score.
	Score float64

	// Classification is the chunk's classification.
	Classification Classification

	// Metadata is a snapshot of the chunk metadata.
	Metadata map[string]string

	// Rank is the 0-based position within the current ordering.
	Rank int
}

// Source returns the source metadata value.
func (r RetrievalResult) Source() string {
	return r.Metadata[MetaSource]
}

// DocumentID returns the parent document id from metadata.
func (r RetrievalResult) DocumentID() string {
	return r.Metadata[MetaDocumentID]
}

// MatchesFilters reports whether metadata satisfies every key/value filter.
func MatchesFilters(metadata, filters map[string]string) bool {
	for key, want := range filters {
		if got, ok := metadata[key]; !ok || got != want {
			return false
		}
	}
	return true
}

// IndexStats summarises the contents of a vector index.
type IndexStats struct {
	Vectors          int
	Dimension        int
	Documents        int
	ByClassification map[Classification]int
}
