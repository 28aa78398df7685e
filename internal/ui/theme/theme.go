// Package theme holds the colors and styles of terminal reports.
package theme

import (
	"charm.land/lipgloss/v2"

	"github.com/abhisek/pathway/internal/model"
)

// Color palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Violet
	Accent  = lipgloss.Color("#14B8A6") // Teal
	Warning = lipgloss.Color("#F59E0B") // Amber
	Success = lipgloss.Color("#22C55E") // Green
	Error   = lipgloss.Color("#F43F5E") // Rose
	Text    = lipgloss.Color("#F8FAFC")
	TextDim = lipgloss.Color("#94A3B8")
	Track   = lipgloss.Color("#334155")
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Heading = lipgloss.NewStyle().
		Bold(true).
		Foreground(Text)

	Label = lipgloss.NewStyle().
		Foreground(TextDim)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Track).
		Padding(0, 1)

	BarFilled = lipgloss.NewStyle().
			Background(Accent)

	BarEmpty = lipgloss.NewStyle().
			Background(Track)
)

// Status returns the style for a program or task status.
func Status(status string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch status {
	case string(model.ProgramCompleted):
		return s.Foreground(Success)
	case string(model.TaskActive):
		return s.Foreground(Accent)
	case string(model.ProgramAbandoned):
		return s.Foreground(Error)
	}
	return s.Foreground(TextDim)
}

// Performance returns the style for a performance bucket.
func Performance(p model.Performance) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch p {
	case model.PerformanceExcellent, model.PerformanceGood:
		return s.Foreground(Success)
	case model.PerformanceSatisfactory:
		return s.Foreground(Warning)
	}
	return s.Foreground(Error)
}
