package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/dpetrovic89/agentic-dev-pipeline/agent"
	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/extract"
	"github.com/dpetrovic89/agentic-dev-pipeline/pr"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// ErrWorkerPanic wraps a panic recovered from a worker.
var ErrWorkerPanic = errors.New("worker panicked")

// rawLimit caps raw worker output copied into events and test results.
const rawLimit = 200

// Stages binds the stage functions to a config and a set of workers.
type Stages struct {
	cfg     Config
	workers agent.Workers
	events  eventlog.Sink
	prs     pr.Provider
	logger  *slog.Logger
}

// Option configures Stages.
type Option func(*Stages)

// WithEventSink sets where run events are written.
func WithEventSink(sink eventlog.Sink) Option {
	return func(s *Stages) { s.events = sink }
}

// WithPRProvider sets the provider used to merge approved pull requests.
func WithPRProvider(p pr.Provider) Option {
	return func(s *Stages) { s.prs = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stages) { s.logger = logger }
}

// NewStages validates cfg and binds the workers. In offline mode the given
// workers are ignored and the canned offline workers are used.
func NewStages(cfg Config, workers agent.Workers, opts ...Option) (*Stages, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OfflineMode {
		workers = agent.Offline()
	}
	if err := workers.Validate(); err != nil {
		return nil, err
	}

	s := &Stages{
		cfg:     cfg,
		workers: workers,
		events:  eventlog.NopSink{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the bounds the stages were built with.
func (s *Stages) Config() Config {
	return s.cfg
}

func (s *Stages) emit(ctx context.Context, runID, event string, actor eventlog.Actor, data map[string]any) {
	eventlog.Emit(ctx, s.events, runID, event, actor, data)
}

// callWorker invokes one worker and converts a panic into an error, so a
// misbehaving collaborator fails the ticket rather than the run.
func (s *Stages) callWorker(ctx context.Context, actor eventlog.Actor, fn func(context.Context) (string, error)) (raw string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker panicked", "actor", actor, "panic", r, "stack", string(debug.Stack()))
			raw, err = "", fmt.Errorf("%w: %s: %v", ErrWorkerPanic, actor, r)
		}
		recordWorkerDuration(ctx, actor, time.Since(start), err != nil)
	}()
	return fn(ctx)
}

// =============================================================================
// Plan
// =============================================================================

// Plan is the plan node. The first visit asks the planner for tickets;
// later visits requeue the retryable tickets without calling the planner.
func (s *Stages) Plan(ctx flowgraph.Context, st State) (State, error) {
	st.Tickets = cloneTickets(st.Tickets)
	st.LoopCount++

	if len(st.Tickets) > 0 {
		requeued := 0
		for i := range st.Tickets {
			if !st.Tickets[i].Status.IsRetryable() {
				continue
			}
			if err := st.Tickets[i].Requeue(); err != nil {
				return st, fmt.Errorf("requeue %s: %w", st.Tickets[i].ID, err)
			}
			requeued++
		}
		s.emit(ctx, st.RunID, "loop_retry", eventlog.ActorEngine, map[string]any{
			"loop":     st.LoopCount,
			"requeued": requeued,
		})
	} else {
		raw, err := s.callWorker(ctx, eventlog.ActorPlanner, func(ctx context.Context) (string, error) {
			return s.workers.Planner.Plan(ctx, st.Spec)
		})
		if err != nil {
			s.emit(ctx, st.RunID, "plan_failed", eventlog.ActorPlanner, map[string]any{"error": err.Error()})
		}
		items, ok := extract.List(raw)
		if !ok && err == nil {
			s.emit(ctx, st.RunID, "plan_parse_error", eventlog.ActorPlanner, map[string]any{"raw": truncate(raw, rawLimit)})
		}
		st.Tickets = ticketsFromPlan(items)
		s.emit(ctx, st.RunID, "plan_complete", eventlog.ActorPlanner, map[string]any{"ticket_count": len(st.Tickets)})
	}

	if st.LoopCount > s.cfg.MaxGraphLoops && !st.LoopLimited {
		st.LoopLimited = true
		s.emit(ctx, st.RunID, "loop_limit", eventlog.ActorEngine, map[string]any{
			"loop":  st.LoopCount,
			"limit": s.cfg.MaxGraphLoops,
		})
	}
	return st, nil
}

// ticketsFromPlan maps planner entries onto pending tickets. Entries that
// are not objects are skipped; missing fields get positional defaults and
// repeated ids are suffixed to stay unique.
func ticketsFromPlan(items []any) []ticket.Ticket {
	tickets := make([]ticket.Ticket, 0, len(items))
	seen := make(map[string]int)
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := stringField(obj, "id")
		if id == "" {
			id = stringField(obj, "gid")
		}
		if id == "" {
			id = fmt.Sprintf("mock-%d", i)
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		}
		seen[id]++

		title := stringField(obj, "title")
		if title == "" {
			title = fmt.Sprintf("Ticket %d", i)
		}

		var deps []string
		if list, ok := obj["dependencies"].([]any); ok {
			for _, d := range list {
				if ds := scalarString(d); ds != "" {
					deps = append(deps, ds)
				}
			}
		}

		tickets = append(tickets, ticket.New(id, title, deps, ticket.ParseComplexity(stringField(obj, "complexity"))))
	}
	return tickets
}

// =============================================================================
// Code / Test / Review
// =============================================================================

// Code runs the coder on a pending ticket. Success needs a branch and a pull
// request reference.
func (s *Stages) Code(ctx context.Context, runID string, attempt int, t *ticket.Ticket) Delta {
	input := t.Clone()
	raw, err := s.callWorker(ctx, eventlog.ActorCoder, func(ctx context.Context) (string, error) {
		return s.workers.Coder.Code(ctx, input)
	})

	var branch, ref string
	reason := ""
	if err != nil {
		reason = err.Error()
	} else if obj, ok := extract.Object(raw); !ok {
		reason = "no structured result"
	} else {
		branch = stringField(obj, "branch")
		ref = prReference(obj)
		if branch == "" || ref == "" {
			reason = "missing branch or pull request reference"
		}
	}

	if reason != "" {
		_ = t.AddRetry()
		_ = t.Transition(ticket.StatusPending)
		s.emit(ctx, runID, "code_failed", eventlog.ActorCoder, map[string]any{
			"ticket":  t.ID,
			"reason":  reason,
			"raw":     truncate(raw, rawLimit),
			"retries": t.Retries,
		})
		return s.fail(ctx, attempt, StageCode, *t, reason)
	}

	t.Branch = branch
	t.PRReference = ref
	if err := t.Transition(ticket.StatusInProgress); err != nil {
		return s.fail(ctx, attempt, StageCode, *t, err.Error())
	}
	s.emit(ctx, runID, "code_complete", eventlog.ActorCoder, map[string]any{
		"ticket": t.ID,
		"branch": branch,
		"pr":     ref,
	})
	return s.complete(ctx, attempt, StageCode, *t)
}

// Test runs the tester on a coded ticket. The suite passes only when the
// result reports zero failures.
func (s *Stages) Test(ctx context.Context, runID string, attempt int, t *ticket.Ticket) Delta {
	var result ticket.TestResult
	if t.Branch == "" {
		result.Error = "no branch to test"
	} else {
		input := t.Clone()
		raw, err := s.callWorker(ctx, eventlog.ActorTester, func(ctx context.Context) (string, error) {
			return s.workers.Tester.Test(ctx, input)
		})
		if err != nil {
			result.Error = truncate(err.Error(), rawLimit)
		} else if obj, ok := extract.Object(raw); ok {
			result = testResultFrom(obj)
		} else {
			result.Error = truncate(raw, rawLimit)
			if result.Error == "" {
				result.Error = "empty tester output"
			}
		}
	}

	passed := result.Error == "" && result.Failed == 0
	t.TestResult = &result

	if !passed {
		_ = t.Transition(ticket.StatusTestFailed)
		reason := result.Error
		if reason == "" {
			reason = fmt.Sprintf("%d of %d tests failed", result.Failed, result.Total)
		}
		s.emit(ctx, runID, "test_failed", eventlog.ActorTester, map[string]any{
			"ticket": t.ID,
			"reason": reason,
		})
		return s.fail(ctx, attempt, StageTest, *t, reason)
	}

	_ = t.Transition(ticket.StatusTested)
	s.emit(ctx, runID, "test_complete", eventlog.ActorTester, map[string]any{
		"ticket":   t.ID,
		"total":    result.Total,
		"coverage": result.Coverage,
	})
	return s.complete(ctx, attempt, StageTest, *t)
}

// testResultFrom reads tester JSON. A missing "failed" count is treated as a
// failure.
func testResultFrom(obj map[string]any) ticket.TestResult {
	var r ticket.TestResult
	total, _ := numberField(obj, "total")
	passed, _ := numberField(obj, "passed")
	failed, ok := numberField(obj, "failed")
	if !ok {
		failed = 1
	}
	r.Total = int(total)
	r.Passed = int(passed)
	r.Failed = int(failed)
	r.Coverage, _ = numberField(obj, "coverage")
	return r
}

// Review runs the reviewer on a tested ticket. Only a literal true approval
// counts; anything else is a rejection that uses up a retry.
func (s *Stages) Review(ctx context.Context, runID string, attempt int, t *ticket.Ticket) Delta {
	input := t.Clone()
	raw, err := s.callWorker(ctx, eventlog.ActorReviewer, func(ctx context.Context) (string, error) {
		return s.workers.Reviewer.Review(ctx, input)
	})

	approved := false
	var reason string
	switch obj, ok := extract.Object(raw); {
	case err != nil:
		reason = err.Error()
	case !ok:
		reason = "parse error"
	default:
		approved, _ = obj["approved"].(bool)
		reason = stringField(obj, "reason")
	}
	_ = t.SetReview(approved, reason)

	if !approved {
		_ = t.AddRetry()
		_ = t.Transition(ticket.StatusReviewRejected)
		if reason == "" {
			reason = "not approved"
		}
		s.commentReview(ctx, runID, *t, false, reason)
		s.emit(ctx, runID, "review_rejected", eventlog.ActorReviewer, map[string]any{
			"ticket":  t.ID,
			"reason":  reason,
			"retries": t.Retries,
		})
		return s.fail(ctx, attempt, StageReview, *t, reason)
	}

	_ = t.Transition(ticket.StatusApproved)
	s.commentReview(ctx, runID, *t, true, reason)
	s.emit(ctx, runID, "review_complete", eventlog.ActorReviewer, map[string]any{
		"ticket":   t.ID,
		"approved": true,
		"reason":   reason,
	})
	return s.complete(ctx, attempt, StageReview, *t)
}

func (s *Stages) complete(ctx context.Context, attempt int, stage Stage, t ticket.Ticket) Delta {
	recordOutcome(ctx, stage, "completed")
	return Delta{Completed: []Outcome{{Ticket: t.Clone(), Attempt: attempt, Stage: stage}}}
}

func (s *Stages) fail(ctx context.Context, attempt int, stage Stage, t ticket.Ticket, reason string) Delta {
	recordOutcome(ctx, stage, "failed")
	return Delta{Failed: []Outcome{{Ticket: t.Clone(), Attempt: attempt, Stage: stage, Reason: reason}}}
}

// =============================================================================
// Field helpers
// =============================================================================

// prReference accepts any of the keys coders use for the pull request.
func prReference(obj map[string]any) string {
	for _, key := range []string{"pr_reference", "pr_number", "pr_url"} {
		if v := scalarString(obj[key]); v != "" {
			return v
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	return scalarString(obj[key])
}

// scalarString renders strings and numbers; other values are empty.
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func numberField(obj map[string]any, key string) (float64, bool) {
	switch x := obj[key].(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
