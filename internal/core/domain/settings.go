package domain

const unknownDescription = "Unknown"

// AIProvider identifies a provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance reached over loopback HTTP.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderHash is the offline feature-hashing embedder.
	AIProviderHash AIProvider = "hash"

	// AIProviderExtractive is the offline extractive generator.
	AIProviderExtractive AIProvider = "extractive"
)

// IsValidEmbedding returns true if the provider can produce embeddings.
func (p AIProvider) IsValidEmbedding() bool {
	return p == AIProviderOllama || p == AIProviderHash
}

// IsValidLLM returns true if the provider can generate answers.
func (p AIProvider) IsValidLLM() bool {
	return p == AIProviderOllama || p == AIProviderExtractive
}

// DefaultSimilarityThreshold is the semantic cutoff suited to vectors from
// an embedding provider. Hashed features share far fewer dimensions than a
// trained model's, so related text scores lower.
func DefaultSimilarityThreshold(p AIProvider) float64 {
	if p == AIProviderHash {
		return 0.35
	}
	return 0.7
}

// IsOffline returns true if the provider runs in process.
func (p AIProvider) IsOffline() bool {
	return p == AIProviderHash || p == AIProviderExtractive
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local HTTP)"
	case AIProviderHash:
		return "Feature hashing (in process)"
	case AIProviderExtractive:
		return "Extractive (in process)"
	default:
		return unknownDescription
	}
}

// EnforcementMode selects where clearance is enforced on a query.
type EnforcementMode string

// Available enforcement modes.
const (
	// EnforcementDeny retrieves across all levels and denies release of an
	// answer whose classification exceeds the user's clearance.
	EnforcementDeny EnforcementMode = "deny"

	// EnforcementFilter caps retrieval at the user's clearance so answers
	// are built only from releasable chunks.
	EnforcementFilter EnforcementMode = "filter"
)

// IsValid returns true if the enforcement mode is recognised.
func (m EnforcementMode) IsValid() bool {
	return m == EnforcementDeny || m == EnforcementFilter
}

// ChunkingSettings configures the chunker, measured in characters.
type ChunkingSettings struct {
	Size    int
	Overlap int
}

// RetrievalSettings configures retrieval and ranking.
type RetrievalSettings struct {
	Mode                RetrievalMode
	TopK                int
	SimilarityThreshold float64

	// FusedThreshold applies to hybrid fused scores, which live on the
	// reciprocal-rank scale rather than the cosine scale.
	FusedThreshold float64

	SemanticWeight float64
	Rerank         bool

	// OverFetch multiplies TopK before classification post-filtering.
	OverFetch int
}

// KeywordWeight is the complement of SemanticWeight.
func (r RetrievalSettings) KeywordWeight() float64 {
	return 1 - r.SemanticWeight
}

// SecuritySettings configures encryption and classification enforcement.
type SecuritySettings struct {
	Encryption            bool
	KeyFile               string
	DefaultClassification Classification
	Enforcement           EnforcementMode

	// Offline requires every configured endpoint to be a loopback address.
	Offline bool
}

// SafetySettings configures the hallucination filter.
type SafetySettings struct {
	Strict     bool
	MinOverlap float64
	Phrases    []string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider   AIProvider
	Model      string
	BaseURL    string
	Dimensions int

	// RequestsPerSecond paces HTTP providers. Zero disables pacing.
	RequestsPerSecond float64
}

// LLMSettings holds generation provider configuration.
type LLMSettings struct {
	Provider          AIProvider
	Model             string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	RequestsPerSecond float64
}

// AppSettings holds all application settings.
type AppSettings struct {
	// DataDir holds the index, database, audit log and keys.
	DataDir string

	Chunking  ChunkingSettings
	Retrieval RetrievalSettings
	Security  SecuritySettings
	Safety    SafetySettings
	Embedding EmbeddingSettings
	LLM       LLMSettings

	// Users registered with the gate. Empty means DefaultUsers.
	Users []UserSpec
}

// DefaultHallucinationPhrases are hedging phrases that indicate knowledge
// from outside the supplied context.
func DefaultHallucinationPhrases() []string {
	return []string{
		"based on my knowledge",
		"based on my training",
		"as far as i know",
		"generally speaking",
		"in general",
		"from my understanding",
		"from my training",
	}
}

// DefaultAppSettings returns settings that run fully offline.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Chunking: ChunkingSettings{
			Size:    2048, // 512 tokens at ~4 chars per token
			Overlap: 200,
		},
		Retrieval: RetrievalSettings{
			Mode:                RetrievalModeSemantic,
			TopK:                5,
			SimilarityThreshold: DefaultSimilarityThreshold(AIProviderHash),
			FusedThreshold:      0,
			SemanticWeight:      0.7,
			Rerank:              true,
			OverFetch:           3,
		},
		Security: SecuritySettings{
			Encryption:            true,
			KeyFile:               "keys/master.key",
			DefaultClassification: Unclassified,
			Enforcement:           EnforcementDeny,
			Offline:               true,
		},
		Safety: SafetySettings{
			Strict:     true,
			MinOverlap: 0.30,
			Phrases:    DefaultHallucinationPhrases(),
		},
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHash,
			Model:      "all-minilm",
			BaseURL:    "http://127.0.0.1:11434",
			Dimensions: 384,
		},
		LLM: LLMSettings{
			Provider:    AIProviderExtractive,
			Model:       "llama3.2",
			BaseURL:     "http://127.0.0.1:11434",
			Temperature: 0.1,
			MaxTokens:   512,
		},
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config so new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration keyed by processor name.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor returns a chunker-only pipeline sized by the settings.
func PipelineConfigFor(chunking ChunkingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": chunking.Size,
				"overlap":    chunking.Overlap,
			},
		},
	}
}

// DefaultPipelineConfig returns the pipeline for default chunking settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfigFor(DefaultAppSettings().Chunking)
}
