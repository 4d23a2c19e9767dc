package workflow

import (
	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
	"golang.org/x/sync/errgroup"

	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// FanOut is the process_tickets node. It takes the first MaxParallelCoders
// pending tickets in planning order, runs their pipelines concurrently on
// private copies, and after all of them finish writes the tickets back and
// merges the deltas in dispatch order.
func (s *Stages) FanOut(ctx flowgraph.Context, st State) (State, error) {
	st.Tickets = cloneTickets(st.Tickets)

	var batch []int
	for i, t := range st.Tickets {
		if t.Status != ticket.StatusPending {
			continue
		}
		batch = append(batch, i)
		if len(batch) == s.cfg.MaxParallelCoders {
			break
		}
	}

	s.emit(ctx, st.RunID, "fanout_started", eventlog.ActorEngine, map[string]any{
		"loop":    st.LoopCount,
		"tickets": len(batch),
	})

	results := make([]ticket.Ticket, len(batch))
	deltas := make([]Delta, len(batch))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallelCoders)
	for k, i := range batch {
		k, t := k, st.Tickets[i].Clone()
		g.Go(func() error {
			results[k], deltas[k] = s.ProcessTicket(ctx, st.RunID, st.LoopCount, t)
			return nil
		})
	}
	_ = g.Wait()

	for k, i := range batch {
		st.Tickets[i] = results[k]
	}
	st = st.Merge(deltas...)

	completed, failed, err := st.Partition(st.LoopCount)
	if err != nil {
		return st, err
	}
	s.emit(ctx, st.RunID, "fanout_complete", eventlog.ActorEngine, map[string]any{
		"loop":      st.LoopCount,
		"completed": len(completed),
		"failed":    len(failed),
	})
	return st, nil
}
