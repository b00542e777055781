package driven

// Sealer provides authenticated symmetric encryption for persisted
// artifacts. Each Seal call uses a fresh random nonce.
type Sealer interface {
	// Seal encrypts plaintext, binding aad.
	Seal(plaintext, aad []byte) ([]byte, error)

	// Open decrypts a sealed blob. Failures wrap domain.ErrDecryption and
	// distinguish wrong key, tampering, truncation and plaintext input.
	Open(blob, aad []byte) ([]byte, error)

	// Fingerprint identifies the key without revealing it.
	Fingerprint() string
}
