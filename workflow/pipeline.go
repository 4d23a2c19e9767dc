package workflow

import (
	"context"

	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// ProcessTicket runs code, test and review for one ticket, stopping at the
// first stage that fails. It returns the updated ticket and the delta of the
// stage where it stopped. A ticket out of retries is escalated without
// calling any worker.
func (s *Stages) ProcessTicket(ctx context.Context, runID string, attempt int, t ticket.Ticket) (ticket.Ticket, Delta) {
	if t.Exhausted(s.cfg.MaxTicketRetries) {
		if err := t.Escalate(); err != nil {
			return t, s.fail(ctx, attempt, StageCode, t, err.Error())
		}
		s.emit(ctx, runID, "ticket_escalated", eventlog.ActorCoder, map[string]any{
			"ticket":  t.ID,
			"retries": t.Retries,
		})
		return t, s.fail(ctx, attempt, StageCode, t, "retries exhausted")
	}

	d := s.Code(ctx, runID, attempt, &t)
	if len(d.Failed) > 0 {
		return t, d
	}
	d = s.Test(ctx, runID, attempt, &t)
	if len(d.Failed) > 0 {
		return t, d
	}
	return t, s.Review(ctx, runID, attempt, &t)
}
