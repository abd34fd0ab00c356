package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// RenderSummary formats the end-of-run report.
func RenderSummary(s fanload.RunSummary) string {
	avg := "N/A"
	if d := s.AveragePerFile(); d > 0 {
		avg = formatDuration(d)
	}

	status := SuccessStyle.Render(SymbolCheck + " " + string(s.State))
	if s.State == fanload.StateFailedStart || s.Failed > 0 {
		status = ErrorStyle.Render(SymbolCross + " " + string(s.State))
	}

	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = ErrorStyle.Render(failed)
	}
	mismatched := fmt.Sprint(s.Mismatched)
	if s.Mismatched > 0 {
		mismatched = WarningStyle.Render(mismatched)
	}

	rows := [][2]string{
		{"Run", s.RunID},
		{"State", status},
		{"Files processed", fmt.Sprint(s.Processed)},
		{"Completed", fmt.Sprint(s.Completed)},
		{"Failed", failed},
		{"Count mismatches", mismatched},
		{"Destination rows", fmt.Sprint(s.TotalRows)},
		{"Elapsed", formatDuration(s.Elapsed)},
		{"Average per file", avg},
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, LabelStyle.Render(r[0]), r[1]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render("Load summary"), BoxStyle.Render(b.String()))
}

// RenderLedger formats per-status ledger counts.
func RenderLedger(table string, s fanload.LedgerSummary) string {
	lines := []string{
		LabelStyle.Render("Pending") + fmt.Sprint(s.Pending),
		LabelStyle.Render("Completed") + SuccessStyle.Render(fmt.Sprint(s.Completed)),
		LabelStyle.Render("Failed") + ErrorStyle.Render(fmt.Sprint(s.Failed)),
		LabelStyle.Render("Total") + fmt.Sprint(s.Total()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render("Ledger "+table), BoxStyle.Render(strings.Join(lines, "\n")))
}

// RenderItems lists ledger rows with their counts and error detail, one per line.
func RenderItems(items []fanload.WorkItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("(none)")
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s", statusMark(it.Status), it.FilePath, MutedStyle.Render(it.LastUpdated.Format(time.DateTime)))
		if it.ExpectedRecordCount != nil && it.InsertedRecordCount != nil {
			fmt.Fprintf(&b, " %d/%d rows", *it.InsertedRecordCount, *it.ExpectedRecordCount)
		}
		if it.ErrorDetail != nil {
			b.WriteString("\n    " + WarningStyle.Render(*it.ErrorDetail))
		}
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
