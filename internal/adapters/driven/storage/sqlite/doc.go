// Package sqlite provides the durable metadata store behind driven.ChunkStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Chunk text and metadata live in the chunks table and an
// FTS5 table mirrors chunk content for keyword search. Both are written in
// the same transaction, so a search never sees half of a batch.
//
// # Schema
//
// The schema is managed through numbered migrations embedded from the
// migrations/ directory. Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// The database is stored as metadata.db in the data directory.
//
// # Thread Safety
//
// All operations are safe for concurrent use. The database runs in WAL mode.
package sqlite
