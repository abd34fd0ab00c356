package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// ANSI 256 palette.
var (
	colorAccent = lipgloss.Color("39")
	colorFrame  = lipgloss.Color("245")
	colorOK     = lipgloss.Color("34")
	colorWarn   = lipgloss.Color("214")
	colorBad    = lipgloss.Color("196")
	colorDim    = lipgloss.Color("240")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	BoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorFrame).Padding(0, 1)
	LabelStyle   = lipgloss.NewStyle().Foreground(colorFrame).Width(22)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorOK)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorBad)
	WarningStyle = lipgloss.NewStyle().Foreground(colorWarn)
	MutedStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	SymbolCheck   = "✓"
	SymbolCross   = "✗"
	SymbolPending = "…"
)

// statusMark renders the one-character marker for a ledger status.
func statusMark(s fanload.Status) string {
	switch s {
	case fanload.StatusCompleted:
		return SuccessStyle.Render(SymbolCheck)
	case fanload.StatusFailed:
		return ErrorStyle.Render(SymbolCross)
	default:
		return MutedStyle.Render(SymbolPending)
	}
}
