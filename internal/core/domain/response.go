package domain

// InsufficientInformation is the sentinel answer for ungrounded or empty results.
const InsufficientInformation = "Insufficient information in provided documents"

// NoDocumentsAnswer is returned when retrieval finds nothing.
const NoDocumentsAnswer = InsufficientInformation + ". No relevant documents found for your query."

// Response is the outcome of a query.
// A denied response is a normal result, not an error.
type Response struct {
	// Query is the query as received.
	Query string

	// Answer is the generated, filtered or sentinel text.
	Answer string

	// Sources are the results used to build the context.
	Sources []RetrievalResult

	// Classification is the highest level among sources and the default.
	Classification Classification

	// IsValid records whether the safety filter accepted the answer.
	IsValid bool

	// Denied is set when the user lacks permission or clearance.
	Denied bool

	// DenialReason explains a denial.
	DenialReason string

	// RequiredClearance and UserClearance are set on clearance denials.
	RequiredClearance Classification
	UserClearance     Classification

	// Warning is a handling notice for classified answers.
	Warning string

	Metadata ResponseMetadata
}

// ResponseMetadata describes how an answer was produced.
type ResponseMetadata struct {
	RetrievedCount int
	AvgSimilarity  float64
	MinSimilarity  float64
	MaxSimilarity  float64
	Mode           RetrievalMode
	Reranked       bool
}

// DocumentIDs returns the distinct parent document ids of the sources in order.
func (r *Response) DocumentIDs() []string {
	seen := make(map[string]bool, len(r.Sources))
	ids := make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		id := src.DocumentID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
