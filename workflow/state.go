package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dpetrovic89/agentic-dev-pipeline/agent"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// =============================================================================
// Outcomes
// =============================================================================

// Stage names a ticket pipeline stage.
type Stage string

// Ticket stages.
const (
	StageCode   Stage = "code"
	StageTest   Stage = "test"
	StageReview Stage = "review"
)

// Outcome records where one ticket attempt stopped.
type Outcome struct {
	Ticket ticket.Ticket `json:"ticket"`
	// Attempt is the run's LoopCount when the ticket was dispatched.
	Attempt int    `json:"attempt"`
	Stage   Stage  `json:"stage"`
	Reason  string `json:"reason,omitempty"`
}

// Delta is what one ticket pipeline contributes to the run accumulators.
type Delta struct {
	Completed []Outcome `json:"completed,omitempty"`
	Failed    []Outcome `json:"failed,omitempty"`
}

// ErrPartition means a ticket was recorded as both completed and failed in
// the same attempt.
var ErrPartition = errors.New("ticket both completed and failed in one attempt")

// =============================================================================
// State
// =============================================================================

// State is the run state carried between graph nodes and persisted in
// every checkpoint.
type State struct {
	RunID    string `json:"runId"`
	SpecPath string `json:"specPath"`
	Spec     string `json:"spec"`

	// Tickets are kept in planning order.
	Tickets []ticket.Ticket `json:"tickets"`

	// Completed and Failed only ever grow.
	Completed []Outcome `json:"completed"`
	Failed    []Outcome `json:"failed"`

	HumanApproved    bool   `json:"humanApproved"`
	Approver         string `json:"approver,omitempty"`
	NotificationSent bool   `json:"notificationSent"`
	NotifyAck        string `json:"notifyAck,omitempty"`

	LoopCount   int       `json:"loopCount"`
	LoopLimited bool      `json:"loopLimited"`
	Merged      []string  `json:"merged,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// NewState seeds the state for a new run.
func NewState(runID, specPath, spec string) State {
	return State{
		RunID:     runID,
		SpecPath:  specPath,
		Spec:      spec,
		StartedAt: time.Now().UTC(),
	}
}

// Merge appends the deltas to the accumulators in the order given.
func (s State) Merge(deltas ...Delta) State {
	s.Completed = append([]Outcome(nil), s.Completed...)
	s.Failed = append([]Outcome(nil), s.Failed...)
	for _, d := range deltas {
		s.Completed = append(s.Completed, d.Completed...)
		s.Failed = append(s.Failed, d.Failed...)
	}
	return s
}

// Partition returns the outcomes recorded for one attempt and checks that
// no ticket appears on both sides.
func (s State) Partition(attempt int) (completed, failed []Outcome, err error) {
	done := make(map[string]bool)
	for _, o := range s.Completed {
		if o.Attempt == attempt {
			completed = append(completed, o)
			done[o.Ticket.ID] = true
		}
	}
	var overlap []string
	for _, o := range s.Failed {
		if o.Attempt == attempt {
			failed = append(failed, o)
			if done[o.Ticket.ID] {
				overlap = append(overlap, o.Ticket.ID)
			}
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		err = fmt.Errorf("%w: attempt %d: %s", ErrPartition, attempt, strings.Join(overlap, ", "))
	}
	return completed, failed, err
}

// Ticket returns the ticket with the given id.
func (s State) Ticket(id string) (ticket.Ticket, bool) {
	for _, t := range s.Tickets {
		if t.ID == id {
			return t, true
		}
	}
	return ticket.Ticket{}, false
}

// CountByStatus counts tickets per status.
func (s State) CountByStatus() map[ticket.Status]int {
	counts := make(map[ticket.Status]int)
	for _, t := range s.Tickets {
		counts[t.Status]++
	}
	return counts
}

// HasPending reports whether any ticket is waiting to be coded.
func (s State) HasPending() bool {
	for _, t := range s.Tickets {
		if t.Status == ticket.StatusPending {
			return true
		}
	}
	return false
}

// HasUnfinished reports whether any ticket still needs another attempt.
func (s State) HasUnfinished() bool {
	for _, t := range s.Tickets {
		if t.Status == ticket.StatusPending || t.Status.IsRetryable() {
			return true
		}
	}
	return false
}

// AllApproved reports whether the run produced tickets and every one of
// them was approved.
func (s State) AllApproved() bool {
	if len(s.Tickets) == 0 {
		return false
	}
	for _, t := range s.Tickets {
		if t.Status != ticket.StatusApproved {
			return false
		}
	}
	return true
}

// Summary builds the notification summary from the final ticket statuses.
func (s State) Summary() agent.Summary {
	sum := agent.Summary{
		RunID:         s.RunID,
		Total:         len(s.Tickets),
		HumanApproved: s.HumanApproved,
		LoopLimited:   s.LoopLimited,
		Merged:        append([]string(nil), s.Merged...),
	}

	var covSum float64
	var covN int
	for _, t := range s.Tickets {
		if t.Status == ticket.StatusApproved {
			sum.Completed = append(sum.Completed, t.Clone())
		} else {
			sum.Failed = append(sum.Failed, t.Clone())
		}
		if t.TestResult != nil && t.TestResult.Error == "" {
			covSum += t.TestResult.Coverage
			covN++
		}
	}
	if covN > 0 {
		sum.AverageCoverage = covSum / float64(covN)
	}
	return sum
}

// cloneTickets deep-copies the ticket list so a node never mutates the
// slice held by the previous state value.
func cloneTickets(ts []ticket.Ticket) []ticket.Ticket {
	if ts == nil {
		return nil
	}
	out := make([]ticket.Ticket, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
