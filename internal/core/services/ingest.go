package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService chunks, embeds and indexes documents.
type IngestService struct {
	gate     *Gate
	chunker  driven.PostProcessorPipeline
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	store    driven.ChunkStore
	auditLog driven.AuditLog
	loader   driven.DocumentLoader
}

// NewIngestService creates a new ingest service.
func NewIngestService(
	gate *Gate,
	chunker driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	store driven.ChunkStore,
	auditLog driven.AuditLog,
) *IngestService {
	return &IngestService{
		gate:     gate,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		store:    store,
		auditLog: auditLog,
	}
}

// SetLoader sets the file loader used by IngestFiles.
func (s *IngestService) SetLoader(loader driven.DocumentLoader) {
	s.loader = loader
}

// IngestFiles loads each supported file under paths and ingests the
// documents that loaded. Load failures are reported as skipped.
func (s *IngestService) IngestFiles(
	ctx context.Context, userID string, paths []string, defaults map[string]string,
) (*driving.IngestReport, error) {
	if s.loader == nil {
		return nil, errors.New("document loader not configured")
	}
	files, err := s.loader.Expand(paths)
	if err != nil {
		return nil, err
	}

	var docs []*domain.Document
	var skipped []driving.SkippedDocument
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.loader.Load(ctx, path, defaults)
		if err != nil {
			logger.Info("Skipping %s: %v", path, err)
			skipped = append(skipped, driving.SkippedDocument{Source: path, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}

	report, err := s.Ingest(ctx, userID, docs)
	if report != nil {
		report.Skipped = append(skipped, report.Skipped...)
	}
	return report, err
}

// Ingest indexes docs on behalf of userID. Documents above the user's
// clearance are skipped and audited. The index is saved once at the end,
// including after a failure part way through.
func (s *IngestService) Ingest(
	ctx context.Context, userID string, docs []*domain.Document,
) (report *driving.IngestReport, err error) {
	logger.Section("Ingestion")
	user, err := s.gate.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CheckPermission(user, domain.PermissionIngest) {
		if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
			Kind:           domain.AuditAccessDenied,
			UserID:         userID,
			Classification: user.Clearance,
			Details:        map[string]any{"reason": "permission", "permission": string(domain.PermissionIngest)},
		}); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s lacks %s", domain.ErrAccessDenied, userID, domain.PermissionIngest)
	}

	report = &driving.IngestReport{}
	defer func() {
		if report.Documents == 0 {
			return
		}
		if saveErr := s.index.Save(ctx); saveErr != nil {
			err = errors.Join(err, fmt.Errorf("save index: %w", saveErr))
		}
	}()

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if !s.gate.CheckClearance(user, doc.Classification) {
			if err := s.skipForClearance(ctx, user, doc, report); err != nil {
				return report, err
			}
			continue
		}

		n, err := s.ingestOne(ctx, doc)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				report.Skipped = append(report.Skipped, driving.SkippedDocument{
					DocumentID: doc.ID, Source: doc.Source(), Reason: err.Error(),
				})
				continue
			}
			return report, fmt.Errorf("ingest %s: %w", doc.Source(), err)
		}
		if n == 0 {
			report.Skipped = append(report.Skipped, driving.SkippedDocument{
				DocumentID: doc.ID, Source: doc.Source(), Reason: "document has no text",
			})
			continue
		}

		if err := appendAudit(ctx, s.auditLog, domain.AuditEvent{
			Kind:           domain.AuditIngest,
			UserID:         userID,
			Classification: doc.Classification,
			Details: map[string]any{
				"document_id": doc.ID,
				"source":      doc.Source(),
				"chunks":      n,
				"checksum":    doc.Checksum,
			},
			Success: true,
		}); err != nil {
			return report, err
		}
		report.Documents++
		report.Chunks += n
		logger.Info("Ingested %s as %s: %d chunks", doc.Source(), doc.Classification, n)
	}

	return report, nil
}

// ingestOne replaces a document's chunks in the index and the store.
func (s *IngestService) ingestOne(ctx context.Context, doc *domain.Document) (int, error) {
	chunks, err := s.chunker.Process(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	for i := range chunks {
		chunks[i].Classification = doc.Classification
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}

	if _, err := s.index.DeleteDocument(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("remove previous vectors: %w", err)
	}
	if err := s.index.Add(ctx, vectors, chunks); err != nil {
		return 0, fmt.Errorf("index vectors: %w", err)
	}
	if err := s.store.ReplaceDocument(ctx, doc, chunks); err != nil {
		if _, rbErr := s.index.DeleteDocument(ctx, doc.ID); rbErr != nil {
			logger.Warn("Rollback of vectors for %s failed: %v", doc.ID, rbErr)
		}
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	return len(chunks), nil
}

func (s *IngestService) skipForClearance(
	ctx context.Context, user domain.User, doc *domain.Document, report *driving.IngestReport,
) error {
	reason := fmt.Sprintf("document is %s, clearance is %s", doc.Classification, user.Clearance)
	logger.Info("Skipping %s: %s", doc.Source(), reason)
	report.Skipped = append(report.Skipped, driving.SkippedDocument{
		DocumentID: doc.ID, Source: doc.Source(), Reason: reason,
	})
	return appendAudit(ctx, s.auditLog, domain.AuditEvent{
		Kind:           domain.AuditAccessDenied,
		UserID:         user.ID,
		Classification: doc.Classification,
		Details: map[string]any{
			"reason":      "clearance",
			"action":      "ingest",
			"document_id": doc.ID,
		},
	})
}
