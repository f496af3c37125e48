package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// SentinelText marks the end of the list while more pages exist.
const SentinelText = "Loading more...."

// Color palette
var (
	ColorBorder  = lipgloss.Color("63")  // purple
	ColorText    = lipgloss.Color("15")  // bright white
	ColorAccent  = lipgloss.Color("226") // bright yellow
	ColorTextDim = lipgloss.Color("241") // gray
	ColorLink    = lipgloss.Color("86")  // cyan
	ColorError   = lipgloss.Color("196") // red
)

// Common styles
var (
	// Address bar at the top of the screen
	AddressStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorBorder)

	// One record in the list
	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			PaddingLeft(2)

	// Trailing sentinel
	SentinelStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Italic(true).
			PaddingLeft(2)

	// "Load previous" affordance
	LinkStyle = lipgloss.NewStyle().
			Foreground(ColorLink).
			Underline(true)

	// Hint/help text style
	HintStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim).
			Italic(true)

	// Status line
	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	// Fetch errors in the status line
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)
)

// NewSpinner returns the spinner shown while the first page loads.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorAccent)
	return s
}
