package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/bastion/internal/adapters/driving/cli/styles"
	"github.com/custodia-labs/bastion/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/bastion/internal/adapters/driving/tui/views/query"
)

// App is the console application following the Elm architecture.
type App struct {
	ports  *Ports
	keymap *keymap.KeyMap
	view   *query.View
	width  int
	height int
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a console acting as userID.
func NewApp(ports *Ports, userID string) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	if userID == "" {
		return nil, fmt.Errorf("creating app: %w", ErrMissingUser)
	}

	km := keymap.DefaultKeyMap()
	return &App{
		ports:  ports,
		keymap: km,
		view:   query.NewView(styles.NewStyles(nil, false), km, ports.Query, userID),
	}, nil
}

// WithContext sets the context used for queries.
func (a *App) WithContext(ctx context.Context) *App {
	a.view.WithContext(ctx)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("bastion"),
		a.view.Init(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		a.width, a.height = msg.Width, msg.Height
	}
	if msg, ok := msg.(tea.KeyMsg); ok && keymap.Matches(msg.String(), a.keymap.Quit) {
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.view, cmd = a.view.Update(msg)
	return a, cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.view.Ready() {
		return "Initialising..."
	}
	return a.view.View()
}

// QueryView returns the active view.
func (a *App) QueryView() *query.View {
	return a.view
}

// Run starts the console on the terminal and blocks until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, ports *Ports, userID string) error {
	app, err := NewApp(ports, userID)
	if err != nil {
		return err
	}
	app.WithContext(ctx)

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console error: %w", err)
	}
	return nil
}
