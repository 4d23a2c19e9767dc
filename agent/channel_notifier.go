package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dpetrovic89/agentic-dev-pipeline/notify"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// Composer writes the message text for a run summary.
type Composer interface {
	Compose(ctx context.Context, s Summary) (string, error)
}

// ChannelNotifier publishes the run summary as a notify.Event.
type ChannelNotifier struct {
	notifier notify.Notifier
	composer Composer
	channel  string
	logger   *slog.Logger
}

// ChannelOption configures a ChannelNotifier.
type ChannelOption func(*ChannelNotifier)

// WithComposer has a model write the message. Without one, or when the
// composer fails, Summary.Text is used.
func WithComposer(c Composer) ChannelOption {
	return func(n *ChannelNotifier) { n.composer = c }
}

// WithChannel names the channel in the acknowledgement.
func WithChannel(channel string) ChannelOption {
	return func(n *ChannelNotifier) { n.channel = channel }
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger *slog.Logger) ChannelOption {
	return func(n *ChannelNotifier) { n.logger = logger }
}

// NewChannelNotifier creates a notifier that sends through n.
func NewChannelNotifier(n notify.Notifier, opts ...ChannelOption) *ChannelNotifier {
	cn := &ChannelNotifier{notifier: n, logger: slog.Default()}
	for _, opt := range opts {
		opt(cn)
	}
	return cn
}

// Notify implements Notifier.
func (n *ChannelNotifier) Notify(ctx context.Context, s Summary) (string, error) {
	message := s.Text()
	if n.composer != nil {
		if text, err := n.composer.Compose(ctx, s); err != nil {
			n.logger.Warn("compose notification failed, using plain summary", "error", err)
		} else if text != "" {
			message = text
		}
	}

	event := SummaryEvent(s, message)
	if err := n.notifier.Notify(ctx, event); err != nil {
		return "", fmt.Errorf("notify: %w", err)
	}

	ack, err := json.Marshal(map[string]any{"posted": true, "channel": n.channel})
	if err != nil {
		return "", err
	}
	return string(ack), nil
}

// SummaryEvent converts a run summary into a notification event.
func SummaryEvent(s Summary, message string) notify.Event {
	event := notify.Event{
		Type:      notify.EventRunCompleted,
		RunID:     s.RunID,
		Title:     fmt.Sprintf("Pipeline run %s: %d/%d tickets approved", s.RunID, len(s.Completed), s.Total),
		Message:   message,
		Severity:  notify.SeverityInfo,
		Timestamp: time.Now(),
		Fields: []notify.Field{
			{Title: "Progress", Value: s.ProgressBar(10)},
			{Title: "Coverage", Value: fmt.Sprintf("%.1f%%", s.AverageCoverage)},
			{Title: "Human approval", Value: yesNo(s.HumanApproved)},
		},
	}

	if len(s.Failed) > 0 {
		event.Severity = notify.SeverityWarning
		event.Fields = append(event.Fields, notify.Field{Title: "Failed", Value: ticketIDs(s.Failed)})
	}
	if esc := s.Escalated(); len(esc) > 0 {
		event.Fields = append(event.Fields, notify.Field{Title: "Escalated", Value: ticketIDs(esc)})
	}
	if s.LoopLimited {
		event.Type = notify.EventLoopLimit
		event.Severity = notify.SeverityWarning
	}
	if len(s.Merged) > 0 {
		event.Fields = append(event.Fields, notify.Field{Title: "Merged", Value: strings.Join(s.Merged, ", ")})
	}
	return event
}

func ticketIDs(ts []ticket.Ticket) string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return strings.Join(ids, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
