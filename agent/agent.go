package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// Planner decomposes a specification into tickets.
type Planner interface {
	Plan(ctx context.Context, spec string) (string, error)
}

// Coder implements a ticket and reports the branch and pull request.
type Coder interface {
	Code(ctx context.Context, t ticket.Ticket) (string, error)
}

// Tester runs the test suite for a ticket branch.
type Tester interface {
	Test(ctx context.Context, t ticket.Ticket) (string, error)
}

// Reviewer reviews a ticket's pull request.
type Reviewer interface {
	Review(ctx context.Context, t ticket.Ticket) (string, error)
}

// Notifier publishes the end-of-run summary.
type Notifier interface {
	Notify(ctx context.Context, s Summary) (string, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, spec string) (string, error)

func (f PlannerFunc) Plan(ctx context.Context, spec string) (string, error) { return f(ctx, spec) }

// CoderFunc adapts a function to Coder.
type CoderFunc func(ctx context.Context, t ticket.Ticket) (string, error)

func (f CoderFunc) Code(ctx context.Context, t ticket.Ticket) (string, error) { return f(ctx, t) }

// TesterFunc adapts a function to Tester.
type TesterFunc func(ctx context.Context, t ticket.Ticket) (string, error)

func (f TesterFunc) Test(ctx context.Context, t ticket.Ticket) (string, error) { return f(ctx, t) }

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, t ticket.Ticket) (string, error)

func (f ReviewerFunc) Review(ctx context.Context, t ticket.Ticket) (string, error) { return f(ctx, t) }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, s Summary) (string, error)

func (f NotifierFunc) Notify(ctx context.Context, s Summary) (string, error) { return f(ctx, s) }

// ErrMissingWorker is returned by Workers.Validate.
var ErrMissingWorker = errors.New("missing worker")

// Workers bundles one worker per stage.
type Workers struct {
	Planner  Planner
	Coder    Coder
	Tester   Tester
	Reviewer Reviewer
	Notifier Notifier
}

// Validate reports every stage without a worker.
func (w Workers) Validate() error {
	var missing []string
	if w.Planner == nil {
		missing = append(missing, "planner")
	}
	if w.Coder == nil {
		missing = append(missing, "coder")
	}
	if w.Tester == nil {
		missing = append(missing, "tester")
	}
	if w.Reviewer == nil {
		missing = append(missing, "reviewer")
	}
	if w.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingWorker, strings.Join(missing, ", "))
	}
	return nil
}

// =============================================================================
// Summary
// =============================================================================

// Summary is what the notifier reports at the end of a run.
type Summary struct {
	RunID           string          `json:"runId"`
	Total           int             `json:"total"`
	Completed       []ticket.Ticket `json:"completed"`
	Failed          []ticket.Ticket `json:"failed"`
	HumanApproved   bool            `json:"humanApproved"`
	LoopLimited     bool            `json:"loopLimited"`
	Merged          []string        `json:"merged,omitempty"`
	AverageCoverage float64         `json:"averageCoverage"`
}

// Escalated returns the failed tickets that ran out of retries.
func (s Summary) Escalated() []ticket.Ticket {
	var out []ticket.Ticket
	for _, t := range s.Failed {
		if t.Status == ticket.StatusEscalated {
			out = append(out, t)
		}
	}
	return out
}

// Success reports whether every ticket was approved.
func (s Summary) Success() bool {
	return len(s.Failed) == 0 && !s.LoopLimited && len(s.Completed) == s.Total
}

// ProgressBar renders completion as "[####------] 2/5".
func (s Summary) ProgressBar(width int) string {
	if width <= 0 {
		width = 10
	}
	filled := 0
	if s.Total > 0 {
		filled = len(s.Completed) * width / s.Total
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat("#", filled), strings.Repeat("-", width-filled),
		len(s.Completed), s.Total)
}

// Text renders the summary as a short plain-text message.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s\n", s.RunID, s.ProgressBar(10))
	if s.LoopLimited {
		b.WriteString("Stopped early: loop limit reached\n")
	}
	for _, t := range s.Completed {
		fmt.Fprintf(&b, "  ok   %s %s\n", t.ID, t.Title)
	}
	for _, t := range s.Failed {
		fmt.Fprintf(&b, "  fail %s %s (%s, %d retries)\n", t.ID, t.Title, t.Status, t.Retries)
	}
	fmt.Fprintf(&b, "Average coverage: %.1f%%", s.AverageCoverage)
	if len(s.Merged) > 0 {
		fmt.Fprintf(&b, "\nMerged: %s", strings.Join(s.Merged, ", "))
	}
	return b.String()
}
