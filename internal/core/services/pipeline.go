package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure Pipeline accepts a prompt store.
var _ driven.PromptStoreAware = (*Pipeline)(nil)

// MinQueryLength is the shortest accepted query, in characters.
const MinQueryLength = 3

// PipelineOptions holds the fixed behaviour of a pipeline.
type PipelineOptions struct {
	DefaultClassification domain.Classification
	Enforcement           domain.EnforcementMode
	MaxTokens             int
	Temperature           float64
}

// RunOptions configures a single pipeline run.
type RunOptions struct {
	UserID string

	// Clearance is the user's clearance. Nil skips the release check.
	Clearance *domain.Classification

	Mode      domain.RetrievalMode
	TopK      int
	Threshold float64
	Filters   map[string]string
	Rerank    bool
	Strict    bool
}

// Pipeline runs retrieval, classification enforcement, generation and the
// safety check for one query, strictly in that order.
type Pipeline struct {
	retrievers  map[domain.RetrievalMode]Retriever
	llm         driven.LLMService
	auditLog    driven.AuditLog
	safety      SafetyFilter
	opts        PipelineOptions
	promptStore driven.PromptStore
}

// NewPipeline creates a pipeline. hybrid may be nil, in which case hybrid
// requests fall back to semantic retrieval.
func NewPipeline(
	semantic, hybrid Retriever,
	llm driven.LLMService,
	auditLog driven.AuditLog,
	safety SafetyFilter,
	opts PipelineOptions,
) *Pipeline {
	retrievers := map[domain.RetrievalMode]Retriever{domain.RetrievalModeSemantic: semantic}
	if hybrid != nil {
		retrievers[domain.RetrievalModeHybrid] = hybrid
	}
	if !opts.Enforcement.IsValid() {
		opts.Enforcement = domain.EnforcementDeny
	}
	return &Pipeline{
		retrievers: retrievers,
		llm:        llm,
		auditLog:   auditLog,
		safety:     safety,
		opts:       opts,
	}
}

// SetPromptStore sets the prompt store for the system prompt and template.
func (p *Pipeline) SetPromptStore(store driven.PromptStore) {
	p.promptStore = store
}

// Run answers query. A clearance denial is returned as a Denied response.
func (p *Pipeline) Run(ctx context.Context, query string, opts RunOptions) (*domain.Response, error) {
	logger.Section("Query Pipeline")
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, fmt.Errorf("%w: need at least %d characters", domain.ErrQueryTooShort, MinQueryLength)
	}

	mode := opts.Mode
	retriever, ok := p.retrievers[mode]
	if !ok {
		if mode != "" {
			logger.Warn("Retrieval mode %q unavailable, using semantic", mode)
		}
		mode = domain.RetrievalModeSemantic
		retriever = p.retrievers[mode]
	}

	ceiling := domain.TopSecret
	if p.opts.Enforcement == domain.EnforcementFilter && opts.Clearance != nil {
		ceiling = *opts.Clearance
	}
	logger.Debug("Mode=%s top_k=%d threshold=%.3f ceiling=%s enforcement=%s",
		mode, opts.TopK, opts.Threshold, ceiling, p.opts.Enforcement)

	results, err := retriever.Retrieve(ctx, query, domain.RetrievalOptions{
		TopK:      opts.TopK,
		Threshold: opts.Threshold,
		Ceiling:   ceiling,
		Filters:   opts.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if len(results) == 0 {
		logger.Info("No documents retrieved")
		return &domain.Response{
			Query:          query,
			Answer:         domain.NoDocumentsAnswer,
			Classification: p.opts.DefaultClassification,
			IsValid:        true,
			Metadata:       domain.ResponseMetadata{Mode: mode},
		}, nil
	}

	if opts.Rerank {
		results = Rerank(query, results, opts.TopK)
	}

	classification := p.opts.DefaultClassification
	for _, r := range results {
		classification = domain.MaxClassification(classification, r.Classification)
	}

	if opts.Clearance != nil && !opts.Clearance.IsAtLeast(classification) {
		return p.deny(ctx, query, opts, classification, len(results))
	}

	contextText := FormatContext(results)
	prompt := p.renderPrompt(contextText, query)

	logger.Debug("Generating answer from %d chunks (%d context chars)", len(results), len(contextText))
	answer, err := p.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
		StopWords:   []string{domain.PromptQueryMarker, domain.PromptSystemMarker},
	})
	if err != nil {
		logger.Warn("Generation failed: %v", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrLLMUnavailable, err)
	}
	answer = strings.TrimSpace(answer)

	valid, answer := p.safety.ValidateResponse(answer, contextText, opts.Strict)
	if !valid {
		logger.Warn("Answer failed safety validation and was replaced")
	}

	resp := &domain.Response{
		Query:          query,
		Answer:         answer,
		Sources:        results,
		Classification: classification,
		IsValid:        valid,
		Metadata:       similarityStats(results, mode, opts.Rerank),
	}
	if classification != domain.Unclassified {
		resp.Warning = fmt.Sprintf(domain.ClassificationWarning, classification)
	}
	logger.Info("Answer released at %s from %d sources", classification, len(results))
	return resp, nil
}

// deny builds the denial response and audits it. A failed audit write is
// returned as an error.
func (p *Pipeline) deny(
	ctx context.Context, query string, opts RunOptions, required domain.Classification, retrieved int,
) (*domain.Response, error) {
	user := *opts.Clearance
	reason := fmt.Sprintf("ACCESS DENIED: Documents are classified as %s. Your clearance level: %s.", required, user)
	logger.Info("Clearance denial for %s: required %s, has %s", opts.UserID, required, user)

	if err := appendAudit(ctx, p.auditLog, domain.AuditEvent{
		Kind:           domain.AuditAccessDenied,
		UserID:         opts.UserID,
		Classification: required,
		QueryHash:      HashQuery(query),
		Details: map[string]any{
			"reason":             "clearance",
			"required_clearance": required.String(),
			"user_clearance":     user.String(),
			"retrieved_count":    retrieved,
		},
	}); err != nil {
		return nil, err
	}

	return &domain.Response{
		Query:             query,
		Answer:            reason,
		Classification:    required,
		Denied:            true,
		DenialReason:      reason,
		RequiredClearance: required,
		UserClearance:     user,
		Metadata:          domain.ResponseMetadata{RetrievedCount: retrieved},
	}, nil
}

// renderPrompt fills the template, falling back to the built-in prompts
// when the store is missing or returns an unusable template.
func (p *Pipeline) renderPrompt(contextText, query string) string {
	system, template := domain.DefaultSystemPrompt, domain.DefaultRAGTemplate
	if p.promptStore != nil {
		if s, err := p.promptStore.Load(driven.PromptRAGSystem); err == nil && strings.TrimSpace(s) != "" {
			system = s
		}
		if t, err := p.promptStore.Load(driven.PromptRAGTemplate); err == nil {
			if strings.Count(t, "%s") == 3 {
				template = t
			} else {
				logger.Warn("Prompt %s needs three %%s placeholders, using built-in", driven.PromptRAGTemplate)
			}
		}
	}
	return fmt.Sprintf(template, system, contextText, query)
}

// FormatContext renders results as annotated document blocks.
func FormatContext(results []domain.RetrievalResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Document %d]\n[Source: %s]\n[Classification: %s]\n[Relevance: %.3f]\n\n%s",
			i+1, r.Source(), r.Classification, r.Score, r.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func similarityStats(results []domain.RetrievalResult, mode domain.RetrievalMode, reranked bool) domain.ResponseMetadata {
	meta := domain.ResponseMetadata{
		RetrievedCount: len(results),
		Mode:           mode,
		Reranked:       reranked,
	}
	if len(results) == 0 {
		return meta
	}
	meta.MinSimilarity = results[0].Score
	meta.MaxSimilarity = results[0].Score
	var sum float64
	for _, r := range results {
		sum += r.Score
		meta.MinSimilarity = min(meta.MinSimilarity, r.Score)
		meta.MaxSimilarity = max(meta.MaxSimilarity, r.Score)
	}
	meta.AvgSimilarity = sum / float64(len(results))
	return meta
}
