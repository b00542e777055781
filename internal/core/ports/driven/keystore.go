package driven

// KeyStore holds the master key that artifact keys derive from.
type KeyStore interface {
	// Generate writes a fresh key and returns its fingerprint. An existing
	// key is only replaced when overwrite is set.
	Generate(overwrite bool) (string, error)

	// Fingerprint identifies the stored key. A missing key wraps
	// domain.ErrNotFound.
	Fingerprint() (string, error)

	// Location describes where the key is kept.
	Location() string
}
