// Package ui renders tables and styled summaries for the CLI's
// human-readable output. Machine output (--json) bypasses this package
// entirely.
package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/refinery-cli/refinery/internal/model"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	softStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	skippedStyle = lipgloss.NewStyle().Faint(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Table renders rows of data in aligned columns.
type Table struct {
	w       *tabwriter.Writer
	headers []string
}

// NewTable creates a table writer with the given column headers.
func NewTable(out io.Writer, headers ...string) *Table {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	t := &Table{w: tw, headers: headers}
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return t
}

// Row appends a row of values. The number of values should match the
// number of headers.
func (t *Table) Row(values ...any) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	_, _ = fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

// Flush writes the buffered output.
func (t *Table) Flush() error {
	return t.w.Flush()
}

// RenderStageStatus colors a stage status for terminal display.
func RenderStageStatus(s model.StageStatus) string {
	switch s {
	case model.StageOK:
		return okStyle.Render(string(s))
	case model.StageFailed:
		return failStyle.Render(string(s))
	case model.StageSoftFailed:
		return softStyle.Render(string(s))
	case model.StageSkipped:
		return skippedStyle.Render(string(s))
	default:
		return string(s)
	}
}

// RenderRunStatus colors a run status for terminal display.
func RenderRunStatus(s model.RunStatus) string {
	switch s {
	case model.RunFailed, model.RunError, model.RunDeclined:
		return failStyle.Render(string(s))
	case model.RunCommitted, model.RunClean:
		return okStyle.Render(string(s))
	default:
		return softStyle.Render(string(s))
	}
}

// Header renders a bold section heading.
func Header(s string) string {
	return headerStyle.Render(s)
}

// FormatDuration renders a stage duration compactly: sub-second values
// in milliseconds, everything else rounded to 100ms.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// StageTable writes the per-stage results table.
func StageTable(out io.Writer, stages []model.StageResult) error {
	t := NewTable(out, "STAGE", "STATUS", "DURATION")
	for _, s := range stages {
		t.Row(s.Name, RenderStageStatus(s.Status), FormatDuration(s.Duration))
	}
	return t.Flush()
}

// Summary writes the end-of-run summary: the stage table, the overall
// status, and the commit line when one was created.
func Summary(out io.Writer, report *model.RunReport) error {
	if err := StageTable(out, report.Stages); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s %s\n", Header("Run:"), RenderRunStatus(report.Status))

	if len(report.ChangedFiles) > 0 {
		fmt.Fprintf(out, "%s %d file(s)\n", Header("Changed:"), len(report.ChangedFiles))
	}
	if report.Commit != "" {
		pushed := "not pushed"
		if report.Pushed {
			pushed = "pushed to " + report.Branch
		}
		fmt.Fprintf(out, "%s %s (%s)\n", Header("Commit:"), report.Commit, pushed)
	}
	return nil
}
