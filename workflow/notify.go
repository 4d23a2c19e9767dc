package workflow

import (
	"context"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
)

// Notify is the notify node. Approved pull requests are merged first when
// configured, then the summary goes to the notifier. A notifier failure is
// logged and leaves NotificationSent false; it never fails the run.
func (s *Stages) Notify(ctx flowgraph.Context, st State) (State, error) {
	st.Tickets = cloneTickets(st.Tickets)

	if st.HumanApproved && s.cfg.MergeOnApproval {
		st = s.mergeApproved(ctx, st)
	}

	summary := st.Summary()
	raw, err := s.callWorker(ctx, eventlog.ActorNotifier, func(ctx context.Context) (string, error) {
		return s.workers.Notifier.Notify(ctx, summary)
	})
	if err != nil {
		s.logger.Warn("notification failed", "runId", st.RunID, "error", err)
		s.emit(ctx, st.RunID, "notify_failed", eventlog.ActorNotifier, map[string]any{"error": err.Error()})
		return st, nil
	}

	st.NotificationSent = true
	st.NotifyAck = truncate(raw, rawLimit)
	s.emit(ctx, st.RunID, "notify_complete", eventlog.ActorNotifier, map[string]any{
		"completed":    len(summary.Completed),
		"failed":       len(summary.Failed),
		"loop_limited": st.LoopLimited,
	})
	return st, nil
}
