package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dpetrovic89/agentic-dev-pipeline/agent"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// Worker names counted by Workers.
const (
	WorkerPlan   = "plan"
	WorkerCode   = "code"
	WorkerTest   = "test"
	WorkerReview = "review"
	WorkerNotify = "notify"
)

// Workers is a programmable worker set that counts every call. Unset
// functions answer like the offline workers. Replace functions before the
// run starts.
type Workers struct {
	Plan   func(spec string) (string, error)
	Code   func(t ticket.Ticket) (string, error)
	Test   func(t ticket.Ticket) (string, error)
	Review func(t ticket.Ticket) (string, error)
	Notify func(s agent.Summary) (string, error)

	mu        sync.Mutex
	calls     map[string]int
	summaries []agent.Summary
}

// NewWorkers returns workers that succeed on every ticket.
func NewWorkers() *Workers {
	return &Workers{calls: make(map[string]int)}
}

// RejectingReviews makes every review a rejection.
func (w *Workers) RejectingReviews(reason string) *Workers {
	w.Review = func(ticket.Ticket) (string, error) { return ReviewReply(false, reason), nil }
	return w
}

// FailingTests makes every test run report failed tests.
func (w *Workers) FailingTests() *Workers {
	w.Test = func(ticket.Ticket) (string, error) { return TestReply(5, 3, 2, 60), nil }
	return w
}

// Calls returns how often the named worker was called.
func (w *Workers) Calls(name string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[name]
}

// Total returns the number of worker calls of any kind.
func (w *Workers) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.calls {
		n += c
	}
	return n
}

// LastSummary returns the summary of the most recent notification and
// fails the test if there was none.
func (w *Workers) LastSummary(t *testing.T) agent.Summary {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.summaries) == 0 {
		t.Fatal("notifier never called")
	}
	return w.summaries[len(w.summaries)-1]
}

// Summaries returns every summary passed to the notifier.
func (w *Workers) Summaries() []agent.Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]agent.Summary(nil), w.summaries...)
}

func (w *Workers) count(name string) {
	w.mu.Lock()
	if w.calls == nil {
		w.calls = make(map[string]int)
	}
	w.calls[name]++
	w.mu.Unlock()
}

// Bundle returns the agent.Workers view.
func (w *Workers) Bundle() agent.Workers {
	return agent.Workers{
		Planner: agent.PlannerFunc(func(_ context.Context, spec string) (string, error) {
			w.count(WorkerPlan)
			if w.Plan != nil {
				return w.Plan(spec)
			}
			return agent.OfflinePlan, nil
		}),
		Coder: agent.CoderFunc(func(_ context.Context, t ticket.Ticket) (string, error) {
			w.count(WorkerCode)
			if w.Code != nil {
				return w.Code(t)
			}
			return CodeReply("feature/ticket-"+t.ID, fmt.Sprint(len(t.ID)+100)), nil
		}),
		Tester: agent.TesterFunc(func(_ context.Context, t ticket.Ticket) (string, error) {
			w.count(WorkerTest)
			if w.Test != nil {
				return w.Test(t)
			}
			return agent.OfflineTest, nil
		}),
		Reviewer: agent.ReviewerFunc(func(_ context.Context, t ticket.Ticket) (string, error) {
			w.count(WorkerReview)
			if w.Review != nil {
				return w.Review(t)
			}
			return agent.OfflineReview, nil
		}),
		Notifier: agent.NotifierFunc(func(_ context.Context, s agent.Summary) (string, error) {
			w.count(WorkerNotify)
			w.mu.Lock()
			w.summaries = append(w.summaries, s)
			w.mu.Unlock()
			if w.Notify != nil {
				return w.Notify(s)
			}
			return agent.OfflineNotify, nil
		}),
	}
}
