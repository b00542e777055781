// Package normalisers extracts plain text from files before chunking.
// Each normaliser handles a set of file extensions and is registered with
// a Registry at startup.
package normalisers
