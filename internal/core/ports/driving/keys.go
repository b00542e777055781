package driving

import "context"

// KeyService manages the master encryption key.
type KeyService interface {
	// Generate writes a new master key and returns its fingerprint. The
	// user must hold configure_system. Artifacts sealed under a replaced
	// key become unreadable.
	Generate(ctx context.Context, userID string, force bool) (string, error)

	// Fingerprint identifies the current master key.
	Fingerprint(ctx context.Context, userID string) (string, error)
}
