// Package output renders storyloop's terminal output.
//
// All user-facing text goes through [Printer]; audit logs are written
// separately by the logging package. Styles use lipgloss adaptive colors and
// degrade to plain text when the writer is not a terminal.
package output

import "github.com/charmbracelet/lipgloss"

var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMute = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAcc  = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMute)
	accentStyle = lipgloss.NewStyle().Foreground(colorAcc)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAcc)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMute).
			Padding(0, 1)
)

const (
	iconPass = "✓"
	iconWarn = "⚠"
	iconFail = "✗"
	iconInfo = "●"
)
