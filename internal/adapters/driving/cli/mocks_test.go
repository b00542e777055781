package cli

import (
	"bytes"
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

type mockQueryService struct {
	response *domain.Response
	err      error

	gotUser  string
	gotQuery string
	gotOpts  driving.QueryOptions
}

func (m *mockQueryService) Query(_ context.Context, userID, query string, opts driving.QueryOptions) (*domain.Response, error) {
	m.gotUser, m.gotQuery, m.gotOpts = userID, query, opts
	return m.response, m.err
}

type mockIngestService struct {
	report *driving.IngestReport
	err    error

	gotUser     string
	gotPaths    []string
	gotDefaults map[string]string
}

func (m *mockIngestService) Ingest(_ context.Context, userID string, docs []*domain.Document) (*driving.IngestReport, error) {
	m.gotUser = userID
	return m.report, m.err
}

func (m *mockIngestService) IngestFiles(
	_ context.Context, userID string, paths []string, defaults map[string]string,
) (*driving.IngestReport, error) {
	m.gotUser, m.gotPaths, m.gotDefaults = userID, paths, defaults
	return m.report, m.err
}

type mockAuditService struct {
	result   domain.AuditReadResult
	report   domain.AuditVerifyReport
	err      error
	gotLimit int
}

func (m *mockAuditService) Recent(_ context.Context, _ string, limit int) (domain.AuditReadResult, error) {
	m.gotLimit = limit
	return m.result, m.err
}

func (m *mockAuditService) Verify(_ context.Context, _ string) (domain.AuditVerifyReport, error) {
	return m.report, m.err
}

type mockAccessService struct {
	users []domain.User
}

func (m *mockAccessService) Authenticate(_ context.Context, userID string) (domain.User, error) {
	for _, u := range m.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUnknownUser
}

func (m *mockAccessService) Users() []domain.User { return m.users }

func (m *mockAccessService) CheckPermission(_ domain.User, _ domain.Permission) bool { return true }

func (m *mockAccessService) CheckClearance(user domain.User, level domain.Classification) bool {
	return user.Clearance.IsAtLeast(level)
}

type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
	setErr      error

	gotKey   string
	gotValue any
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(_ context.Context, _ string, key string, value any) error {
	m.gotKey, m.gotValue = key, value
	return m.setErr
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

type mockSystemService struct {
	stats domain.IndexStats
}

func (m *mockSystemService) Start(_ context.Context) (driving.SystemStatus, error) {
	return driving.SystemStatus{IndexState: "loaded"}, nil
}

func (m *mockSystemService) Stop(_ context.Context) error { return nil }

func (m *mockSystemService) Stats() domain.IndexStats { return m.stats }

type mockKeyService struct {
	fingerprint string
	err         error
	gotForce    bool
}

func (m *mockKeyService) Generate(_ context.Context, _ string, force bool) (string, error) {
	m.gotForce = force
	return m.fingerprint, m.err
}

func (m *mockKeyService) Fingerprint(_ context.Context, _ string) (string, error) {
	return m.fingerprint, m.err
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	query    *mockQueryService
	ingest   *mockIngestService
	audit    *mockAuditService
	access   *mockAccessService
	settings *mockSettingsService
	system   *mockSystemService
	keys     *mockKeyService
}

var current *testServices

// setupTestServices installs fresh mocks and returns a cleanup function
// that removes them and restores flag defaults.
func setupTestServices() func() {
	current = &testServices{
		query:    &mockQueryService{response: &domain.Response{Answer: domain.NoDocumentsAnswer, IsValid: true}},
		ingest:   &mockIngestService{report: &driving.IngestReport{}},
		audit:    &mockAuditService{},
		access:   &mockAccessService{},
		settings: &mockSettingsService{settings: domain.DefaultAppSettings()},
		system:   &mockSystemService{},
		keys:     &mockKeyService{fingerprint: "0123456789abcdef"},
	}
	SetServices(&Services{
		Query:    current.query,
		Ingest:   current.ingest,
		Audit:    current.audit,
		Access:   current.access,
		Settings: current.settings,
		System:   current.system,
		Keys:     current.keys,
	})
	resetFlags()

	return func() {
		SetServices(nil)
		resetFlags()
		current = nil
	}
}

// resetFlags restores every flag variable, since cobra keeps parsed values
// between Execute calls.
func resetFlags() {
	verbose, userID = false, defaultUserID
	queryTopK, queryMode, queryThreshold, queryFilters, queryNoRerank, queryJSON = 0, "", 0, nil, false, false
	ingestClassification, ingestType, ingestWatch = "", "", false
	auditLimit, auditJSON = 20, false
	keyForce, indexJSON, versionShort = false, false, false

	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(rootCmd)
}

// runCommand executes the root command with args and returns the combined
// output.
func runCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}
