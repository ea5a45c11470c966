package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
)

// Render formats the run summary for the terminal
func Render(s *domain.RunSummary) string {
	var b strings.Builder

	title := "Run summary"
	if s.DryRun {
		title += " (dry run)"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString(dimmedStyle.Render(fmt.Sprintf("  %s  %s", s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))))
	b.WriteString("\n")

	var batches strings.Builder
	for i, r := range s.Batches {
		if i > 0 {
			batches.WriteString("\n")
		}
		batches.WriteString(renderBatch(r))
	}
	if len(s.Batches) == 0 {
		batches.WriteString(dimmedStyle.Render("no batches processed"))
	}
	b.WriteString(sectionStyle.Render(batches.String()))
	b.WriteString("\n")

	t := s.Totals
	b.WriteString(fmt.Sprintf("Batches: %d (completed %d, skipped %d, failed %d, interrupted %d)\n",
		t.Batches, t.CompletedBatches, t.SkippedBatches, t.FailedBatches, t.InterruptedBatches))
	b.WriteString(fmt.Sprintf("Issues:  %d (updated %d, skipped %d, failed %d)\n",
		t.Issues, t.Updated, t.Skipped, t.Failed))

	if len(s.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render(fmt.Sprintf("Failures (%d):", len(s.Failures))))
		b.WriteString("\n")
		for _, f := range s.Failures {
			line := fmt.Sprintf("  %s  %s  %s", f.Batch, f.Issue, f.ErrorKind)
			if f.Error != "" {
				line += "  " + f.Error
			}
			b.WriteString(line + "\n")
		}
	}

	if len(s.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(fmt.Sprintf("Warnings (%d):", len(s.Warnings))))
		b.WriteString("\n")
		for _, w := range s.Warnings {
			b.WriteString("  " + w + "\n")
		}
	}

	return b.String()
}

func renderBatch(r domain.BatchResult) string {
	line := fmt.Sprintf("%-12s %s", r.Outcome, r.BatchName)
	switch r.Outcome {
	case domain.BatchCompleted:
		line += fmt.Sprintf(": %d issues, %d updated, %d skipped, %d failed", r.Total, r.Updated, r.Skipped, r.Failed)
		if r.Failed > 0 {
			return warningStyle.Render(line)
		}
		return completedStyle.Render(line)
	case domain.BatchSkipped:
		return dimmedStyle.Render(line + ": already done")
	case domain.BatchInterrupted:
		return warningStyle.Render(line + ": " + r.Error)
	default:
		return failedStyle.Render(fmt.Sprintf("%s: %s %s", line, r.ErrorKind, r.Error))
	}
}
