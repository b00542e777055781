// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - VectorIndex: Exact similarity search with classification filtering
//   - ChunkStore: Chunk text persistence with full-text search
//   - AuditLog: Append-only, tamper-evident record of gated actions
//   - EmbeddingService: Turns text into fixed-length vectors
//   - LLMService: Turns a prompt into an answer
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - Sealer: Authenticated encryption for persisted artifacts. When nil,
//     artifacts are written in plaintext.
//   - PromptStore: User-editable prompt templates. When nil, built-in
//     templates are used.
//   - DocumentLoader: Reads files into documents for ingestion.
//   - KeyStore: Generates and identifies the master key.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
