// Package file provides the append-only audit log behind driven.AuditLog.
//
// Records are stored one per line. Each line is a JSON envelope carrying a
// sequence number, the previous record's hash and the record's own BLAKE3
// hash, so removing or editing a line breaks the chain. When a sealer is
// configured each line is instead the base64 encoding of the sealed
// envelope.
package file
