// Package cli provides the bastion command tree.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bastion/internal/core/ports/driving"
	"github.com/custodia-labs/bastion/internal/logger"
)

// userEnv names the variable that sets the default acting user.
const userEnv = "BASTION_USER"

// defaultUserID acts when neither --user nor BASTION_USER is given.
const defaultUserID = "operator"

// scopeAnnotation marks the services a command needs.
const scopeAnnotation = "bastion/scope"

// Scope selects how much of the application a command needs.
type Scope string

// Scopes requested by commands.
const (
	// ScopeFull loads settings, keys, the index, the store and the audit log.
	ScopeFull Scope = "full"

	// ScopeKeys loads settings and the key store only.
	ScopeKeys Scope = "keys"
)

// Services are the driving ports commands call. Shutdown, when set, runs
// after the command finishes.
type Services struct {
	Query    driving.QueryService
	Ingest   driving.IngestService
	Audit    driving.AuditService
	Access   driving.AccessService
	Settings driving.SettingsService
	System   driving.SystemService
	Keys     driving.KeyService
	Shutdown func(ctx context.Context) error
}

// Bootstrap builds the services a command scope needs.
type Bootstrap func(ctx context.Context, scope Scope) (*Services, error)

var version = "dev"

var (
	verbose bool
	userID  string
)

var (
	queryService    driving.QueryService
	ingestService   driving.IngestService
	auditService    driving.AuditService
	accessService   driving.AccessService
	settingsService driving.SettingsService
	systemService   driving.SystemService
	keyService      driving.KeyService

	bootstrap Bootstrap
	shutdown  func(ctx context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Classification-aware document retrieval",
	Long: `Bastion answers questions from a local document corpus while enforcing
classification levels.

Documents are ingested with a classification marking, chunked, embedded and
stored in an encrypted vector index. Queries are answered only from passages
the acting user is cleared to see, and every query, ingestion and denial is
written to an encrypted, hash-chained audit log.

Everything runs offline by default.`,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print diagnostic output")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser(),
		"Acting user id (env "+userEnv+")")
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetBootstrap sets the function that builds services for each command.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs services directly, bypassing bootstrap.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	queryService = s.Query
	ingestService = s.Ingest
	auditService = s.Audit
	accessService = s.Access
	settingsService = s.Settings
	systemService = s.System
	keyService = s.Keys
	shutdown = s.Shutdown
}

// Execute runs the command tree and shuts the services down afterwards.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if shutdown != nil {
		stop := shutdown
		shutdown = nil
		err = errors.Join(err, stop(context.WithoutCancel(ctx)))
	}
	return err
}

// prepare applies global flags and builds the services the command needs.
func prepare(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil {
		return nil
	}
	scope := Scope(cmd.Annotations[scopeAnnotation])
	if scope == "" {
		return nil
	}
	services, err := bootstrap(cmd.Context(), scope)
	if err != nil {
		return err
	}
	SetServices(services)
	return nil
}

// needs annotates a command with the scope it requires.
func needs(scope Scope) map[string]string {
	return map[string]string{scopeAnnotation: string(scope)}
}

func defaultUser() string {
	if u := os.Getenv(userEnv); u != "" {
		return u
	}
	return defaultUserID
}
