package runner

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dpetrovic89/agentic-dev-pipeline/checkpoint"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
	"github.com/dpetrovic89/agentic-dev-pipeline/workflow"
)

// TicketReport is one ticket's final position.
type TicketReport struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Status      ticket.Status      `json:"status"`
	Retries     int                `json:"retries"`
	Branch      string             `json:"branch,omitempty"`
	PRReference string             `json:"prReference,omitempty"`
	Tests       *ticket.TestResult `json:"tests,omitempty"`
	Review      string             `json:"review,omitempty"`
	// LastFailure is the reason recorded for the ticket's most recent
	// failed attempt.
	LastFailure string `json:"lastFailure,omitempty"`
}

// Report is the per-run result written to report.json and rendered by the
// CLI.
type Report struct {
	RunID            string                `json:"runId"`
	SpecPath         string                `json:"specPath"`
	Status           checkpoint.Status     `json:"status"`
	Next             string                `json:"next,omitempty"`
	Exit             ExitStatus            `json:"exit"`
	LoopCount        int                   `json:"loopCount"`
	LoopLimited      bool                  `json:"loopLimited"`
	HumanApproved    bool                  `json:"humanApproved"`
	Approver         string                `json:"approver,omitempty"`
	NotificationSent bool                  `json:"notificationSent"`
	NotifyAck        string                `json:"notifyAck,omitempty"`
	Merged           []string              `json:"merged,omitempty"`
	Counts           map[ticket.Status]int `json:"counts"`
	AverageCoverage  float64               `json:"averageCoverage"`
	Progress         string                `json:"progress"`
	Tickets          []TicketReport        `json:"tickets"`
	StartedAt        time.Time             `json:"startedAt"`
	GeneratedAt      time.Time             `json:"generatedAt"`
}

// NewReport builds the report for a run's current state.
func NewReport(st workflow.State, status checkpoint.Status, next string) Report {
	summary := st.Summary()
	r := Report{
		RunID:            st.RunID,
		SpecPath:         st.SpecPath,
		Status:           status,
		Next:             next,
		Exit:             ExitFor(status, st),
		LoopCount:        st.LoopCount,
		LoopLimited:      st.LoopLimited,
		HumanApproved:    st.HumanApproved,
		Approver:         st.Approver,
		NotificationSent: st.NotificationSent,
		NotifyAck:        st.NotifyAck,
		Merged:           append([]string(nil), st.Merged...),
		Counts:           st.CountByStatus(),
		AverageCoverage:  summary.AverageCoverage,
		Progress:         summary.ProgressBar(20),
		StartedAt:        st.StartedAt,
		GeneratedAt:      time.Now().UTC(),
	}

	lastFailure := make(map[string]string)
	for _, o := range st.Failed {
		lastFailure[o.Ticket.ID] = fmt.Sprintf("%s: %s", o.Stage, o.Reason)
	}
	for _, t := range st.Tickets {
		r.Tickets = append(r.Tickets, TicketReport{
			ID:          t.ID,
			Title:       t.Title,
			Status:      t.Status,
			Retries:     t.Retries,
			Branch:      t.Branch,
			PRReference: t.PRReference,
			Tests:       t.TestResult,
			Review:      t.ReviewReason,
			LastFailure: lastFailure[t.ID],
		})
	}
	return r
}

// Escalated returns the tickets that ran out of retries.
func (r Report) Escalated() []TicketReport {
	var out []TicketReport
	for _, t := range r.Tickets {
		if t.Status == ticket.StatusEscalated {
			out = append(out, t)
		}
	}
	return out
}

var titleCaser = cases.Title(language.English)

// StatusLabel renders a ticket or run status for people, e.g.
// "review_rejected" as "Review Rejected".
func StatusLabel(status string) string {
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

// Markdown renders the report as the summary.md artifact.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Spec: `%s`\n", r.SpecPath)
	fmt.Fprintf(&b, "- Status: %s (%s)\n", StatusLabel(string(r.Status)), r.Exit)
	fmt.Fprintf(&b, "- Progress: `%s`\n", r.Progress)
	fmt.Fprintf(&b, "- Loops: %d\n", r.LoopCount)
	if r.LoopLimited {
		b.WriteString("- Stopped early: loop limit reached\n")
	}
	if r.HumanApproved {
		fmt.Fprintf(&b, "- Approved by: %s\n", r.Approver)
	} else if r.Status == checkpoint.StatusPaused {
		fmt.Fprintf(&b, "- Awaiting approval: `pipeline approve %s`\n", r.RunID)
	}
	if len(r.Merged) > 0 {
		fmt.Fprintf(&b, "- Merged: %s\n", strings.Join(r.Merged, ", "))
	}
	fmt.Fprintf(&b, "- Average coverage: %.1f%%\n", r.AverageCoverage)

	if len(r.Tickets) == 0 {
		b.WriteString("\nNo tickets were planned.\n")
		return b.String()
	}

	b.WriteString("\n| Ticket | Title | Status | Retries | Tests | Notes |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, t := range r.Tickets {
		tests := "-"
		if t.Tests != nil {
			tests = fmt.Sprintf("%d/%d, %.1f%%", t.Tests.Passed, t.Tests.Total, t.Tests.Coverage)
		}
		notes := t.LastFailure
		if t.Status == ticket.StatusApproved {
			notes = t.Review
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
			t.ID, escapeCell(t.Title), StatusLabel(string(t.Status)), t.Retries, tests, escapeCell(notes))
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
