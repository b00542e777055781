package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/bastion/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "metadata.db"

// Store is a SQLite-backed metadata store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database in dataDir.
// If dataDir is empty, defaults to ~/.bastion/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".bastion", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrStoreUnavailable, err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %v", domain.ErrStoreUnavailable, err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ChunkStore returns a ChunkStore backed by this store.
// Closing it closes the store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// migrate applies pending NNN_name.up.sql files in order and records each
// applied version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		logger.Debug("sqlite: applied migration %s", name)
	}

	return nil
}

func (s *Store) applyMigration(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(content); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// InsertChunks upserts chunks and their full-text rows in one transaction.
func (c *chunkStore) InsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return c.withTx(ctx, func(tx *sql.Tx) error {
		return upsertChunks(ctx, tx, chunks)
	})
}

// ReplaceDocument records doc and swaps its chunk set in one transaction.
func (c *chunkStore) ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}
	for i := range chunks {
		if chunks[i].DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				domain.ErrInvalidInput, chunks[i].ID, chunks[i].DocumentID, doc.ID)
		}
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentChunks(ctx, tx, doc.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, source, document_type, classification, checksum, chunk_count, metadata, ingested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source = excluded.source,
				document_type = excluded.document_type,
				classification = excluded.classification,
				checksum = excluded.checksum,
				chunk_count = excluded.chunk_count,
				metadata = excluded.metadata,
				ingested_at = excluded.ingested_at
		`, doc.ID, doc.Source(), doc.DocumentType(), int(doc.Classification), doc.Checksum,
			len(chunks), string(metadataJSON), doc.IngestedAt.UTC())
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		return upsertChunks(ctx, tx, chunks)
	})
}

// GetChunk retrieves a chunk by id.
func (c *chunkStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, chunk_count, classification, content, metadata
		FROM chunks WHERE id = ?
	`, id)
	return scanChunk(row)
}

// SearchText ranks chunks with FTS5 bm25. Lower bm25 is more relevant, and
// ties fall back to chunk id so the order is stable.
func (c *chunkStore) SearchText(ctx context.Context, query string, limit int) ([]domain.Chunk, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := c.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_count, c.classification, c.content, c.metadata
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.chunk_id
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts), c.id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: full-text search: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

// ListDocuments returns every recorded document ordered by source then id.
func (c *chunkStore) ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT id, source, document_type, classification, checksum, chunk_count, ingested_at
		FROM documents ORDER BY source, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentSummary
	for rows.Next() {
		var (
			d     domain.DocumentSummary
			level int
		)
		if err := rows.Scan(&d.ID, &d.Source, &d.DocumentType, &level, &d.Checksum, &d.ChunkCount, &d.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Classification = domain.Classification(level)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document row and all of its chunks.
func (c *chunkStore) DeleteDocument(ctx context.Context, id string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteDocumentChunks(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		return nil
	})
}

// CountChunks returns the number of stored chunks.
func (c *chunkStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := c.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Close closes the underlying store.
func (c *chunkStore) Close() error {
	return c.store.Close()
}

func (c *chunkStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ==================== Helper Functions ====================

func upsertChunks(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, chunk_count, classification, content, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			chunk_count = excluded.chunk_count,
			classification = excluded.classification,
			content = excluded.content,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk statement: %w", err)
	}
	defer chunkStmt.Close()

	ftsDelete, err := tx.PrepareContext(ctx, "DELETE FROM chunks_fts WHERE chunk_id = ?")
	if err != nil {
		return fmt.Errorf("preparing fts delete: %w", err)
	}
	defer ftsDelete.Close()

	ftsInsert, err := tx.PrepareContext(ctx, "INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsInsert.Close()

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.ID == "" {
			return fmt.Errorf("%w: chunk id is empty", domain.ErrInvalidInput)
		}
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		if _, err := chunkStmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Index, chunk.Count,
			int(chunk.Classification), chunk.Content, string(metadataJSON)); err != nil {
			return fmt.Errorf("saving chunk %s: %w", chunk.ID, err)
		}
		if _, err := ftsDelete.ExecContext(ctx, chunk.ID); err != nil {
			return fmt.Errorf("clearing fts row %s: %w", chunk.ID, err)
		}
		if _, err := ftsInsert.ExecContext(ctx, chunk.ID, chunk.Content); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

func deleteDocumentChunks(ctx context.Context, tx *sql.Tx, documentID string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)
	`, documentID); err != nil {
		return fmt.Errorf("deleting fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// ftsQuery turns free text into an FTS5 expression of quoted terms joined
// by OR, so user input never reaches the MATCH grammar.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var (
		chunk        domain.Chunk
		level        int
		metadataJSON string
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Count, &level, &chunk.Content, &metadataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.Classification = domain.Classification(level)
	if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling chunk metadata: %w", err)
	}
	return &chunk, nil
}
