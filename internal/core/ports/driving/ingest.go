package driving

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// IngestService chunks, embeds and indexes documents.
type IngestService interface {
	// Ingest indexes documents on behalf of the user. Re-ingesting a
	// document id replaces all of its chunks. Documents the user may not
	// ingest are skipped and audited.
	Ingest(ctx context.Context, userID string, docs []*domain.Document) (*IngestReport, error)

	// IngestFiles loads every supported file under paths and ingests the
	// results. Defaults supplies metadata such as classification and
	// document_type for files that do not declare them. Files that cannot
	// be loaded are reported as skipped.
	IngestFiles(ctx context.Context, userID string, paths []string, defaults map[string]string) (*IngestReport, error)
}

// IngestReport summarises an ingestion run.
type IngestReport struct {
	Documents int
	Chunks    int
	Skipped   []SkippedDocument
}

// SkippedDocument records why a document was not ingested.
type SkippedDocument struct {
	DocumentID string
	Source     string
	Reason     string
}
