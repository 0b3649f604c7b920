package main

import (
	"fmt"
	"io"
	"strings"

	"driftwatch/internal/conflict"
	"driftwatch/internal/diff"

	"github.com/charmbracelet/lipgloss"
)

var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#7a8699")
)

// Styles for terminal output. lipgloss drops the colors when stdout is not
// a terminal.
var (
	addedStyle   = lipgloss.NewStyle().Foreground(Success)
	removedStyle = lipgloss.NewStyle().Foreground(Destructive)
	contextStyle = lipgloss.NewStyle().Foreground(Muted)
	hunkStyle    = lipgloss.NewStyle().Foreground(Info)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(Success).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(Destructive).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(Warning)
)

func statusStyle(s conflict.Status) lipgloss.Style {
	switch s {
	case conflict.StatusModified:
		return warnStyle
	case conflict.StatusDeleted:
		return removedStyle
	default:
		return contextStyle
	}
}

// renderDiff writes a unified-style diff of one file.
func renderDiff(w io.Writer, path string, lines []diff.Line, contextLines int) {
	fd := diff.Summarize(lines)
	fmt.Fprintln(w, headerStyle.Render("--- generated/"+path))
	fmt.Fprintln(w, headerStyle.Render("+++ current/"+path)+"  "+
		addedStyle.Render(fmt.Sprintf("+%d", fd.Added))+" "+removedStyle.Render(fmt.Sprintf("-%d", fd.Removed)))
	if !fd.HasChanges() {
		fmt.Fprintln(w, contextStyle.Render("(no line changes)"))
		return
	}
	for _, h := range diff.Hunks(fd.Lines, contextLines) {
		fmt.Fprintln(w, hunkStyle.Render(fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)))
		for _, l := range h.Lines {
			switch l.Type {
			case diff.LineAdded:
				fmt.Fprintln(w, addedStyle.Render(l.String()))
			case diff.LineRemoved:
				fmt.Fprintln(w, removedStyle.Render(l.String()))
			default:
				fmt.Fprintln(w, contextStyle.Render(l.String()))
			}
		}
	}
}

// renderSummary writes the divergent files of a detection pass.
func renderSummary(w io.Writer, s *conflict.Summary, files []conflict.File) {
	if s == nil {
		fmt.Fprintln(w, "No detection has run.")
		return
	}
	if !s.HasConflicts() {
		fmt.Fprintf(w, "%s %d tracked file(s), no drift\n", okStyle.Render("✓"), s.TotalFiles)
		return
	}
	fmt.Fprintf(w, "%d tracked file(s): %d modified, %d deleted, %d unchanged\n",
		s.TotalFiles, len(s.ModifiedFiles), len(s.DeletedFiles), len(s.UnchangedFiles))
	for _, f := range files {
		line := fmt.Sprintf("  %-9s %s", f.Status, f.Path)
		if f.FeatureID != "" {
			line += contextStyle.Render("  (" + f.FeatureID + ")")
		}
		fmt.Fprintln(w, statusStyle(f.Status).Render(line))
	}
}

// renderResults writes one line per resolution outcome and returns the
// number of failures.
func renderResults(w io.Writer, results []conflict.Result) int {
	failed := 0
	for _, r := range results {
		switch {
		case r.Discarded:
			fmt.Fprintf(w, "%s %s (%s, superseded by a newer check)\n", warnStyle.Render("~"), r.Path, r.Strategy)
		case r.Success:
			fmt.Fprintf(w, "%s %s (%s)\n", okStyle.Render("✓"), r.Path, r.Strategy)
		default:
			failed++
			fmt.Fprintf(w, "%s %s: %s\n", failStyle.Render("✗"), r.Path, strings.TrimSpace(r.Error))
		}
	}
	return failed
}
