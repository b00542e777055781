// Package styles provides colours and styles for terminal output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

// Theme defines the colour palette for command output.
type Theme struct {
	// Levels maps each classification to its banner colour.
	Levels map[domain.Classification]lipgloss.Color

	// BannerText is the text colour on classification banners.
	BannerText lipgloss.Color

	// Muted is for less important text.
	Muted lipgloss.Color

	// Success indicates positive outcomes.
	Success lipgloss.Color

	// Warning indicates caution.
	Warning lipgloss.Color

	// Error indicates problems.
	Error lipgloss.Color
}

// DefaultTheme returns the conventional marking colours.
func DefaultTheme() *Theme {
	return &Theme{
		Levels: map[domain.Classification]lipgloss.Color{
			domain.Unclassified: lipgloss.Color("#007A33"), // Green
			domain.Confidential: lipgloss.Color("#0033A0"), // Blue
			domain.Secret:       lipgloss.Color("#C8102E"), // Red
			domain.TopSecret:    lipgloss.Color("#FF8C00"), // Orange
		},
		BannerText: lipgloss.Color("#FFFFFF"),
		Muted:      lipgloss.Color("#6C7086"),
		Success:    lipgloss.Color("#A6E3A1"),
		Warning:    lipgloss.Color("#F9E2AF"),
		Error:      lipgloss.Color("#F38BA8"),
	}
}

// Styles renders text for a terminal, or plain text when plain is set.
type Styles struct {
	theme *Theme
	plain bool

	// Title style for headings.
	Title lipgloss.Style

	// Muted style for less important text.
	Muted lipgloss.Style

	// Error style for denials and failures.
	Error lipgloss.Style

	// Success style for success messages.
	Success lipgloss.Style

	// Warning style for handling notices.
	Warning lipgloss.Style
}

// NewStyles creates styles from a theme. Plain styles emit no escape codes.
func NewStyles(theme *Theme, plain bool) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}
	s := &Styles{
		theme:   theme,
		plain:   plain,
		Title:   lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
	}
	if plain {
		return s
	}
	s.Title = lipgloss.NewStyle().Bold(true)
	s.Muted = lipgloss.NewStyle().Foreground(theme.Muted)
	s.Error = lipgloss.NewStyle().Bold(true).Foreground(theme.Error)
	s.Success = lipgloss.NewStyle().Foreground(theme.Success)
	s.Warning = lipgloss.NewStyle().Foreground(theme.Warning)
	return s
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// Banner renders a classification marking line.
func (s *Styles) Banner(level domain.Classification) string {
	text := "CLASSIFICATION: " + level.String()
	if s.plain {
		return "[" + text + "]"
	}
	colour, ok := s.theme.Levels[level]
	if !ok {
		colour = s.theme.Muted
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(s.theme.BannerText).
		Background(colour).
		Padding(0, 1).
		Render(text)
}
