package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MultiNotifier delivers each event to several channels in order. Every
// channel is attempted; the returned error joins the failures, each tagged
// with the channel that produced it.
type MultiNotifier struct {
	Notifiers []Notifier
	Logger    *slog.Logger
}

// NewMultiNotifier skips nil and NopNotifier entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{Logger: slog.Default()}
	for _, n := range notifiers {
		m.Add(n)
	}
	return m
}

// Add appends a channel.
func (m *MultiNotifier) Add(n Notifier) {
	switch n.(type) {
	case nil, NopNotifier, *NopNotifier:
		return
	}
	m.Notifiers = append(m.Notifiers, n)
}

// Notify implements Notifier.
func (m *MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for i, n := range m.Notifiers {
		err := n.Notify(ctx, event)
		if err == nil {
			continue
		}
		channel := fmt.Sprintf("%T", n)
		errs = append(errs, fmt.Errorf("channel %d (%s): %w", i, channel, err))
		if m.Logger != nil {
			m.Logger.Warn("notification channel failed",
				"channel", channel, "event", event.Type, "run", event.RunID, "error", err)
		}
	}
	return errors.Join(errs...)
}
