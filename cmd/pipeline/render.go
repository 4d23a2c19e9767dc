package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dpetrovic89/agentic-dev-pipeline/checkpoint"
	"github.com/dpetrovic89/agentic-dev-pipeline/runner"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMute = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorKey  = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMute)
	keyStyle    = lipgloss.NewStyle().Foreground(colorKey)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorKey)
)

const (
	iconPass = "✓"
	iconWarn = "⚠"
	iconFail = "✗"
	iconWait = "⏸"
	iconStep = "→"
)

// Report table column widths.
const (
	colID      = 12
	colTitle   = 32
	colStatus  = 16
	colRetries = 8
)

func cell(s string, width int) string {
	if len([]rune(s)) > width-1 {
		s = string([]rune(s)[:width-2]) + "…"
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func statusStyle(s ticket.Status) lipgloss.Style {
	switch s {
	case ticket.StatusApproved:
		return passStyle
	case ticket.StatusEscalated:
		return failStyle
	case ticket.StatusTestFailed, ticket.StatusReviewRejected:
		return warnStyle
	default:
		return mutedStyle
	}
}

func exitStyle(e runner.ExitStatus) lipgloss.Style {
	switch e {
	case runner.ExitSuccess:
		return passStyle
	case runner.ExitPaused, runner.ExitFailures:
		return warnStyle
	default:
		return failStyle
	}
}

// renderReport prints a run report for people.
func renderReport(w io.Writer, r runner.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Run "+r.RunID))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("spec    "), r.SpecPath)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("status  "),
		exitStyle(r.Exit).Render(runner.StatusLabel(string(r.Status))+" ("+r.Exit.String()+")"))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("progress"), r.Progress)
	fmt.Fprintf(w, "  %s %d\n", mutedStyle.Render("loops   "), r.LoopCount)
	fmt.Fprintf(w, "  %s %.1f%%\n", mutedStyle.Render("coverage"), r.AverageCoverage)
	if r.HumanApproved {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("approver"), r.Approver)
	}
	if r.LoopLimited {
		fmt.Fprintf(w, "  %s\n", failStyle.Render(iconFail+" stopped at the loop limit"))
	}
	if len(r.Merged) > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("merged  "), strings.Join(r.Merged, ", "))
	}

	if len(r.Tickets) == 0 {
		fmt.Fprintf(w, "\n  %s\n", mutedStyle.Render("No tickets were planned."))
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+mutedStyle.Render(
		cell("TICKET", colID)+cell("TITLE", colTitle)+cell("STATUS", colStatus)+cell("RETRIES", colRetries)+"NOTES"))
	for _, t := range r.Tickets {
		notes := t.LastFailure
		if t.Status == ticket.StatusApproved {
			notes = t.Review
			if t.Tests != nil {
				notes = fmt.Sprintf("%d/%d tests, %.1f%% coverage", t.Tests.Passed, t.Tests.Total, t.Tests.Coverage)
			}
		}
		fmt.Fprintln(w, "  "+
			cell(t.ID, colID)+
			cell(t.Title, colTitle)+
			statusStyle(t.Status).Render(cell(runner.StatusLabel(string(t.Status)), colStatus))+
			cell(strconv.Itoa(t.Retries), colRetries)+
			strings.ReplaceAll(notes, "\n", " "))
	}
}

// renderRuns prints the run listing.
func renderRuns(w io.Writer, runs []runner.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No stored runs."))
		return
	}
	fmt.Fprintln(w, mutedStyle.Render(
		cell("RUN", 10)+cell("STATUS", 12)+cell("NODE", 18)+cell("TICKETS", 10)+"UPDATED"))
	for _, run := range runs {
		status := string(run.Status)
		style := mutedStyle
		switch {
		case run.Corrupt:
			status, style = "corrupt", failStyle
		case run.Status == checkpoint.StatusPaused:
			style = warnStyle
		case run.Status == checkpoint.StatusCompleted:
			style = passStyle
		case run.Status == checkpoint.StatusFailed:
			style = failStyle
		}
		fmt.Fprintln(w,
			cell(run.RunID, 10)+
				style.Render(cell(status, 12))+
				cell(run.Node, 18)+
				cell(fmt.Sprintf("%d/%d", run.Approved, run.Tickets), 10)+
				run.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
