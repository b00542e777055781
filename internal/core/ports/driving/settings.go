package driving

import (
	"context"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the effective settings: defaults, then the config file,
	// then environment overrides.
	Get() (*domain.AppSettings, error)

	// Set updates one configuration key and persists it. The user must hold
	// configure_system and the change is audited as config_change.
	Set(ctx context.Context, userID, key string, value any) error

	// Validate checks the effective settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
