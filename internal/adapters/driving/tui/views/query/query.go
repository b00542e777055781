// Package query provides the question and answer view of the console.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/bastion/internal/adapters/driving/cli/styles"
	"github.com/custodia-labs/bastion/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/bastion/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

// reservedLines are taken by the header, input and status line.
const reservedLines = 6

// modes is the cycle followed by the mode toggle. Empty uses the
// configured mode.
var modes = []domain.RetrievalMode{"", domain.RetrievalModeSemantic, domain.RetrievalModeHybrid}

// View asks questions as one user and shows the answers.
type View struct {
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	input   textinput.Model
	output  viewport.Model
	service driving.QueryService
	userID  string
	ctx     context.Context

	mode    int
	busy    bool
	last    *domain.Response
	err     error
	width   int
	height  int
	ready   bool
	history []string
}

// NewView creates a query view acting as userID.
func NewView(s *styles.Styles, km *keymap.KeyMap, service driving.QueryService, userID string) *View {
	if s == nil {
		s = styles.NewStyles(nil, false)
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask a question..."
	ti.Focus()
	ti.CharLimit = 1024
	ti.Width = 60

	return &View{
		styles:  s,
		keymap:  km,
		input:   ti,
		output:  viewport.New(80, 24-reservedLines),
		service: service,
		userID:  userID,
		ctx:     context.Background(),
		width:   80,
		height:  24,
	}
}

// WithContext sets the context for queries.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKey(msg)

	case messages.QueryCompleted:
		v.handleCompleted(msg)
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	k := msg.String()
	switch {
	case keymap.Matches(k, v.keymap.Submit):
		question := strings.TrimSpace(v.input.Value())
		if question == "" || v.busy {
			return v, nil
		}
		v.busy = true
		v.err = nil
		v.history = append(v.history, question)
		v.input.Reset()
		return v, v.ask(question)

	case keymap.Matches(k, v.keymap.ToggleMode):
		v.mode = (v.mode + 1) % len(modes)
		return v, nil

	case keymap.Matches(k, v.keymap.Clear):
		v.input.Reset()
		return v, nil

	case keymap.Matches(k, v.keymap.ScrollUp), keymap.Matches(k, v.keymap.ScrollDown):
		var cmd tea.Cmd
		v.output, cmd = v.output.Update(msg)
		return v, cmd
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// ask runs the query off the event loop.
func (v *View) ask(question string) tea.Cmd {
	ctx, service, user := v.ctx, v.service, v.userID
	opts := driving.QueryOptions{Mode: modes[v.mode]}
	return func() tea.Msg {
		if service == nil {
			return messages.QueryCompleted{Query: question, Err: ErrNoQueryService}
		}
		resp, err := service.Query(ctx, user, question, opts)
		return messages.QueryCompleted{Query: question, Response: resp, Err: err}
	}
}

func (v *View) handleCompleted(msg messages.QueryCompleted) {
	v.busy = false
	if msg.Err != nil {
		v.err = msg.Err
		return
	}
	v.last = msg.Response
	v.output.SetContent(Render(v.styles, msg.Query, msg.Response))
	v.output.GotoTop()
}

// Render formats a response for display. Denied responses show only the
// denial.
func Render(st *styles.Styles, question string, resp *domain.Response) string {
	var b strings.Builder
	b.WriteString(st.Muted.Render("> " + question))
	b.WriteString("\n\n")
	if resp == nil {
		return b.String()
	}
	if resp.Denied {
		b.WriteString(st.Error.Render(resp.Answer))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(st.Banner(resp.Classification))
	b.WriteString("\n\n")
	b.WriteString(resp.Answer)
	b.WriteString("\n")
	if resp.Warning != "" {
		b.WriteString("\n")
		b.WriteString(st.Warning.Render(resp.Warning))
		b.WriteString("\n")
	}
	if !resp.IsValid {
		b.WriteString(st.Warning.Render("Note: the answer did not pass the safety filter."))
		b.WriteString("\n")
	}
	if len(resp.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for i, src := range resp.Sources {
			fmt.Fprintf(&b, "  %d. %s %s\n", i+1, src.Source(),
				st.Muted.Render(fmt.Sprintf("(%s, score %.3f)", src.Classification, src.Score)))
		}
	}
	return b.String()
}

// View renders the view.
func (v *View) View() string {
	header := v.styles.Title.Render("Bastion") + "  " +
		v.styles.Muted.Render(fmt.Sprintf("user %s, mode %s", v.userID, v.ModeLabel()))

	sections := []string{header, "", v.input.View(), ""}
	if v.err != nil {
		sections = append(sections, v.styles.Error.Render("Error: "+v.err.Error()), "")
	}
	sections = append(sections, v.output.View(), v.statusLine())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (v *View) statusLine() string {
	if v.busy {
		return v.styles.Muted.Render("Retrieving...")
	}
	hints := make([]string, 0, len(v.keymap.ShortHelp()))
	for _, b := range v.keymap.ShortHelp() {
		hints = append(hints, b.Help().Key+" "+b.Help().Desc)
	}
	return v.styles.Muted.Render(strings.Join(hints, "  "))
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.input.Width = max(width-4, 20)
	v.output.Width = width
	v.output.Height = max(height-reservedLines, 3)
}

// ModeLabel names the retrieval mode the next question uses.
func (v *View) ModeLabel() string {
	if modes[v.mode] == "" {
		return "default"
	}
	return modes[v.mode].String()
}

// Busy reports whether a query is in flight.
func (v *View) Busy() bool {
	return v.busy
}

// Ready returns whether the view has been sized.
func (v *View) Ready() bool {
	return v.ready
}

// Input returns the current input text.
func (v *View) Input() string {
	return v.input.Value()
}

// LastResponse returns the most recent response.
func (v *View) LastResponse() *domain.Response {
	return v.last
}

// History returns the questions asked so far.
func (v *View) History() []string {
	return v.history
}

// Err returns the last error, if any.
func (v *View) Err() error {
	return v.err
}
