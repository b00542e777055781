// Package domain holds Bastion's vocabulary: classification levels, the
// documents and chunks that carry them, users and the role policy that
// grants clearance, audit events, retrieval results and query responses.
//
// Every classified value in the system is typed as Classification and
// compared with IsAtLeast, never as a string. Documents cannot be built
// without source, classification and type metadata, and their chunks
// inherit the document's level.
//
// The package imports only the standard library.
package domain
