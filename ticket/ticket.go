package ticket

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by ticket mutators.
var (
	ErrEscalated         = errors.New("ticket is escalated")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle position of a ticket.
type Status string

// Ticket statuses.
const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusTested         Status = "tested"
	StatusTestFailed     Status = "test_failed"
	StatusApproved       Status = "approved"
	StatusReviewRejected Status = "review_rejected"
	StatusEscalated      Status = "escalated"
)

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusPending:        {StatusPending, StatusInProgress, StatusEscalated},
	StatusInProgress:     {StatusTested, StatusTestFailed},
	StatusTested:         {StatusApproved, StatusReviewRejected},
	StatusTestFailed:     {StatusPending, StatusEscalated},
	StatusReviewRejected: {StatusPending, StatusEscalated},
}

// CanTransition reports whether a ticket may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further work will be done on the ticket.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusEscalated
}

// IsRetryable reports whether the ticket failed an attempt and can be requeued.
func (s Status) IsRetryable() bool {
	return s == StatusTestFailed || s == StatusReviewRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusTested, StatusTestFailed,
		StatusApproved, StatusReviewRejected, StatusEscalated:
		return true
	}
	return false
}

// =============================================================================
// Complexity
// =============================================================================

// Complexity is the planner's size estimate.
type Complexity string

// Complexity values.
const (
	ComplexitySmall  Complexity = "S"
	ComplexityMedium Complexity = "M"
	ComplexityLarge  Complexity = "L"
)

// ParseComplexity normalizes planner output; anything unrecognized is Medium.
func ParseComplexity(s string) Complexity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S", "SMALL":
		return ComplexitySmall
	case "L", "LARGE":
		return ComplexityLarge
	default:
		return ComplexityMedium
	}
}

// =============================================================================
// Ticket
// =============================================================================

// TestResult is the tester's report for a ticket branch.
type TestResult struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Coverage float64 `json:"coverage"`
	Error    string  `json:"error,omitempty"`
}

// Ticket is one independently deliverable unit of work.
type Ticket struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Complexity   Complexity `json:"complexity"`

	Branch         string      `json:"branch,omitempty"`
	PRReference    string      `json:"prReference,omitempty"`
	TestResult     *TestResult `json:"testResult,omitempty"`
	ReviewApproved *bool       `json:"reviewApproved,omitempty"`
	ReviewReason   string      `json:"reviewReason,omitempty"`
	Retries        int         `json:"retries"`
	Status         Status      `json:"status"`
}

// New creates a pending ticket with no retries.
func New(id, title string, deps []string, complexity Complexity) Ticket {
	if complexity == "" {
		complexity = ComplexityMedium
	}
	return Ticket{
		ID:           id,
		Title:        title,
		Dependencies: append([]string(nil), deps...),
		Complexity:   complexity,
		Status:       StatusPending,
	}
}

// Transition moves the ticket to status to.
func (t *Ticket) Transition(to Status) error {
	if t.Status == StatusEscalated {
		return ErrEscalated
	}
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// AddRetry records one more failed attempt.
func (t *Ticket) AddRetry() error {
	if t.Status == StatusEscalated {
		return ErrEscalated
	}
	t.Retries++
	return nil
}

// Escalate marks the ticket as exhausted. Escalated tickets are never
// modified again.
func (t *Ticket) Escalate() error {
	return t.Transition(StatusEscalated)
}

// Exhausted reports whether the ticket has used its retry budget.
func (t Ticket) Exhausted(maxRetries int) bool {
	return t.Retries >= maxRetries
}

// Requeue returns a failed ticket to pending for a fresh attempt. A failed
// test run counts as a retry here; review rejections were already counted
// when the review came back.
func (t *Ticket) Requeue() error {
	if !t.Status.IsRetryable() {
		return fmt.Errorf("%w: cannot requeue %s ticket", ErrInvalidTransition, t.Status)
	}
	if t.Status == StatusTestFailed {
		if err := t.AddRetry(); err != nil {
			return err
		}
	}
	return t.Transition(StatusPending)
}

// SetReview records the reviewer's verdict.
func (t *Ticket) SetReview(approved bool, reason string) error {
	if t.Status == StatusEscalated {
		return ErrEscalated
	}
	t.ReviewApproved = &approved
	t.ReviewReason = reason
	return nil
}

// Clone returns a deep copy of the ticket.
func (t Ticket) Clone() Ticket {
	c := t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.TestResult != nil {
		tr := *t.TestResult
		c.TestResult = &tr
	}
	if t.ReviewApproved != nil {
		v := *t.ReviewApproved
		c.ReviewApproved = &v
	}
	return c
}

// String implements fmt.Stringer.
func (t Ticket) String() string {
	return fmt.Sprintf("%s %q [%s]", t.ID, t.Title, t.Status)
}
