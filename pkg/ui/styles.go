// Package ui renders scan output for the terminal: banner, finding
// lines, and the completion summary. CLI only; the core never imports
// this.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color palette.
var (
	Primary   = lipgloss.Color("#F25D27") // hound orange
	Secondary = lipgloss.Color("#00D4AA")

	// Confidence tier colors.
	Confirmed     = lipgloss.Color("#FF3838")
	Likely        = lipgloss.Color("#FFB800")
	Informational = lipgloss.Color("#4D96FF")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Danger  = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
)

// Pre-configured styles.
var (
	BannerStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true)

	VersionStyle = lipgloss.NewStyle().Foreground(Secondary).Bold(true)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(Primary).
			Padding(0, 1)

	SubtleStyle = lipgloss.NewStyle().Foreground(Muted)

	BracketStyle = lipgloss.NewStyle().Foreground(Muted)

	ClassStyle = lipgloss.NewStyle().Foreground(Secondary)

	URLStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))

	StatLabelStyle = lipgloss.NewStyle().Foreground(Muted)

	StatValueStyle = lipgloss.NewStyle().Bold(true)

	DegradedStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)

	ErrorStyle = lipgloss.NewStyle().Foreground(Danger).Bold(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
)

var confidenceStyles = map[string]lipgloss.Style{
	"confirmed":     lipgloss.NewStyle().Foreground(Confirmed).Bold(true),
	"likely":        lipgloss.NewStyle().Foreground(Likely).Bold(true),
	"informational": lipgloss.NewStyle().Foreground(Informational),
}

// ConfidenceStyle returns the style for a confidence tier name.
func ConfidenceStyle(level string) lipgloss.Style {
	if s, ok := confidenceStyles[level]; ok {
		return s
	}
	return SubtleStyle
}

// SetNoColor forces plain output regardless of terminal capabilities.
func SetNoColor(noColor bool) {
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
