package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mandatory document metadata keys.
const (
	MetaSource         = "source"
	MetaClassification = "classification"
	MetaDocumentType   = "document_type"
)

// Chunk-specific metadata keys.
const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaChunkCount = "chunk_count"
	MetaChunkSize  = "chunk_size"
)

// Document represents an ingested document with its security metadata.
// Documents are immutable once created by NewDocument.
type Document struct {
	// ID is the opaque unique identifier for the document.
	ID string

	// Text is the full text content before chunking.
	Text string

	// Metadata always carries source, classification and document_type.
	Metadata map[string]string

	// Classification is the parsed value of the classification metadata key.
	Classification Classification

	// Checksum is the hex SHA-256 of Text.
	Checksum string

	// IngestedAt is when the document was constructed for ingestion.
	IngestedAt time.Time
}

// NewDocument validates metadata and builds a Document. A blank id is
// replaced by a random UUID. The metadata map is copied and the
// classification value is rewritten in its canonical form.
func NewDocument(id, text string, metadata map[string]string) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	for _, key := range []string{MetaSource, MetaClassification, MetaDocumentType} {
		if strings.TrimSpace(metadata[key]) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingMetadata, key)
		}
	}
	level, err := ParseClassification(metadata[MetaClassification])
	if err != nil {
		return nil, err
	}

	meta := maps.Clone(metadata)
	meta[MetaClassification] = level.String()

	sum := sha256.Sum256([]byte(text))
	return &Document{
		ID:             id,
		Text:           text,
		Metadata:       meta,
		Classification: level,
		Checksum:       hex.EncodeToString(sum[:]),
		IngestedAt:     time.Now().UTC(),
	}, nil
}

// Source returns the source metadata value.
func (d *Document) Source() string {
	return d.Metadata[MetaSource]
}

// DocumentType returns the document_type metadata value.
func (d *Document) DocumentType() string {
	return d.Metadata[MetaDocumentType]
}

// Chunk represents a retrievable unit within a document.
// Chunks are produced in bulk by the chunker and never partially updated.
type Chunk struct {
	// ID is deterministic: see ChunkID.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Content is the text content of this chunk.
	Content string

	// Index is the ordinal position within the document.
	Index int

	// Count is the total number of chunks for the document.
	Count int

	// Classification is inherited from the parent document.
	Classification Classification

	// Metadata holds the inherited document metadata plus chunk fields.
	Metadata map[string]string
}

// ChunkID returns the deterministic identifier for a chunk.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Source returns the source metadata value.
func (c *Chunk) Source() string {
	return c.Metadata[MetaSource]
}

// DocumentSummary is the stored view of an ingested document.
type DocumentSummary struct {
	ID             string
	Source         string
	DocumentType   string
	Classification Classification
	Checksum       string
	ChunkCount     int
	IngestedAt     time.Time
}
