package notify

import (
	"context"
	"time"
)

// EventType names what happened in a run.
type EventType string

const (
	EventRunCompleted    EventType = "run_completed"
	EventRunFailed       EventType = "run_failed"
	EventApprovalNeeded  EventType = "approval_needed"
	EventLoopLimit       EventType = "loop_limit"
	EventTicketEscalated EventType = "ticket_escalated"
	EventMerged          EventType = "merged"
)

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Field is one labelled line of an event. Channels render fields in order.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Event is the payload every channel receives.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Fields    []Field   `json:"fields,omitempty"`
}

// Notifier is a delivery channel. An error means this channel failed; the
// caller decides whether that matters.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier drops events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
