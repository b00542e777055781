// Package sealing provides authenticated encryption for artifacts written
// to disk: the vector index snapshot and individual audit log records.
//
// Blobs use XChaCha20-Poly1305 with a random 24-byte nonce per call:
//
//	[Magic "BSL1": 4 bytes] [Key fingerprint: 8 bytes] [Nonce: 24 bytes] [Ciphertext+Tag]
//
// The magic and fingerprint are authenticated as additional data, so a
// reader can tell a plaintext artifact, a blob sealed under another key
// and a tampered blob apart before and after authentication.
//
// A single 32-byte master key lives in a key file. Purpose-specific keys
// are derived from it with HKDF-SHA256 so the index and the audit log never
// share a key.
package sealing
