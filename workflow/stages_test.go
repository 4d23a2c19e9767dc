package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dpetrovic89/agentic-dev-pipeline/agent"
	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/pr"
	"github.com/dpetrovic89/agentic-dev-pipeline/testutil"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// =============================================================================
// Plan
// =============================================================================

func TestPlan_Offline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfflineMode = true
	stages, sink := newTestStages(t, cfg, agent.Workers{})

	st, err := stages.Plan(testutil.FlowContext(t), NewState("r1", "SPEC.md", "anything at all"))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(st.Tickets) != 1 {
		t.Fatalf("tickets = %d, want 1", len(st.Tickets))
	}
	tk := st.Tickets[0]
	if tk.ID != "mock-1" || tk.Status != ticket.StatusPending || tk.Retries != 0 {
		t.Errorf("ticket = %+v", tk)
	}
	if tk.Complexity != ticket.ComplexitySmall {
		t.Errorf("Complexity = %s, want S", tk.Complexity)
	}
	if st.LoopCount != 1 {
		t.Errorf("LoopCount = %d, want 1", st.LoopCount)
	}
	if evs := sink.Named("plan_complete"); len(evs) != 1 || evs[0].Actor != eventlog.ActorPlanner {
		t.Errorf("plan_complete events = %+v", evs)
	}
}

func TestPlan_Misses(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		event string
	}{
		{"prose", "I could not come up with tickets.", nil, "plan_parse_error"},
		{"object instead of list", `{"id": "T-1"}`, nil, "plan_parse_error"},
		{"worker error", "", errors.New("timeout"), "plan_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewWorkers()
			w.Plan = func(string) (string, error) { return tt.reply, tt.err }
			stages, sink := newTestStages(t, DefaultConfig(), w.Bundle())

			st, err := stages.Plan(testutil.FlowContext(t), NewState("r1", "", "spec"))
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if len(st.Tickets) != 0 {
				t.Errorf("tickets = %v, want none", st.Tickets)
			}
			if len(sink.Named(tt.event)) != 1 {
				t.Errorf("missing %s event", tt.event)
			}
			if got := stages.RouteAfterPlan(testutil.FlowContext(t), st); got != NodeNotify {
				t.Errorf("RouteAfterPlan() = %s, want notify", got)
			}
		})
	}
}

func TestTicketsFromPlan(t *testing.T) {
	items := []any{
		map[string]any{"id": "T-1", "title": "First", "dependencies": []any{}, "complexity": "L"},
		map[string]any{"gid": "T-1", "title": "Duplicate id"},
		"not an object",
		map[string]any{"dependencies": []any{"T-1", 7.0}},
		map[string]any{"id": 42.0, "complexity": "huge"},
	}

	got := ticketsFromPlan(items)
	want := []struct {
		id, title  string
		complexity ticket.Complexity
		deps       int
	}{
		{"T-1", "First", ticket.ComplexityLarge, 0},
		{"T-1-2", "Duplicate id", ticket.ComplexityMedium, 0},
		{"mock-3", "Ticket 3", ticket.ComplexityMedium, 2},
		{"42", "Ticket 4", ticket.ComplexityMedium, 0},
	}
	if len(got) != len(want) {
		t.Fatalf("tickets = %d, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].ID != w.id || got[i].Title != w.title || got[i].Complexity != w.complexity || len(got[i].Dependencies) != w.deps {
			t.Errorf("ticket[%d] = %+v, want %+v", i, got[i], w)
		}
		if got[i].Status != ticket.StatusPending || got[i].Retries != 0 {
			t.Errorf("ticket[%d] not fresh: %+v", i, got[i])
		}
	}
}

func TestPlan_ReentryRequeues(t *testing.T) {
	w := testutil.NewWorkers()
	stages, sink := newTestStages(t, DefaultConfig(), w.Bundle())

	failedTest := pendingTicket("a")
	failedTest.Status = ticket.StatusTestFailed
	rejected := pendingTicket("b")
	rejected.Status = ticket.StatusReviewRejected
	rejected.Retries = 1
	done := pendingTicket("c")
	done.Status = ticket.StatusApproved

	st := State{RunID: "r1", LoopCount: 1, Tickets: []ticket.Ticket{failedTest, rejected, done}}
	next, err := stages.Plan(testutil.FlowContext(t), st)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if w.Calls(testutil.WorkerPlan) != 0 {
		t.Errorf("planner called %d times on re-entry", w.Calls(testutil.WorkerPlan))
	}
	if next.LoopCount != 2 {
		t.Errorf("LoopCount = %d, want 2", next.LoopCount)
	}
	if a := next.Tickets[0]; a.Status != ticket.StatusPending || a.Retries != 1 {
		t.Errorf("test_failed ticket = %s/%d, want pending/1", a.Status, a.Retries)
	}
	if b := next.Tickets[1]; b.Status != ticket.StatusPending || b.Retries != 1 {
		t.Errorf("review_rejected ticket = %s/%d, want pending/1", b.Status, b.Retries)
	}
	if next.Tickets[2].Status != ticket.StatusApproved {
		t.Errorf("approved ticket changed to %s", next.Tickets[2].Status)
	}
	if st.Tickets[0].Status != ticket.StatusTestFailed {
		t.Error("Plan mutated the input state")
	}
	if len(sink.Named("loop_retry")) != 1 {
		t.Error("missing loop_retry event")
	}
}

func TestPlan_LoopLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGraphLoops = 2
	stages, sink := newTestStages(t, cfg, testutil.NewWorkers().Bundle())

	tk := pendingTicket("a")
	tk.Status = ticket.StatusTestFailed
	st, err := stages.Plan(testutil.FlowContext(t), State{RunID: "r1", LoopCount: 2, Tickets: []ticket.Ticket{tk}})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !st.LoopLimited {
		t.Error("LoopLimited = false at loop 3 of 2")
	}
	if got := stages.RouteAfterPlan(testutil.FlowContext(t), st); got != NodeNotify {
		t.Errorf("RouteAfterPlan() = %s, want notify", got)
	}
	evs := sink.Named("loop_limit")
	if len(evs) != 1 || evs[0].Actor != eventlog.ActorEngine {
		t.Errorf("loop_limit events = %+v", evs)
	}
}

// =============================================================================
// Ticket pipeline
// =============================================================================

func TestProcessTicket_HappyPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfflineMode = true
	stages, _ := newTestStages(t, cfg, agent.Workers{})

	tk, d := stages.ProcessTicket(context.Background(), "r1", 1, pendingTicket("mock-1"))

	if tk.Status != ticket.StatusApproved {
		t.Errorf("Status = %s, want approved", tk.Status)
	}
	if tk.Branch != "feature/ticket-mock-1" || tk.PRReference != "123" {
		t.Errorf("Branch/PR = %q/%q", tk.Branch, tk.PRReference)
	}
	if tk.TestResult == nil || tk.TestResult.Failed != 0 || tk.TestResult.Coverage != 100 {
		t.Errorf("TestResult = %+v", tk.TestResult)
	}
	if tk.ReviewApproved == nil || !*tk.ReviewApproved {
		t.Errorf("ReviewApproved = %v", tk.ReviewApproved)
	}
	if len(d.Completed) != 1 || len(d.Failed) != 0 || d.Completed[0].Stage != StageReview {
		t.Errorf("delta = %+v, want one completed review outcome", d)
	}
}

func TestProcessTicket_TestFailure(t *testing.T) {
	w := testutil.NewWorkers()
	w.Test = func(ticket.Ticket) (string, error) {
		return "Ran the suite:\n```json\n{\"total\": 10, \"passed\": 8, \"failed\": 2, \"coverage\": 71.5}\n```", nil
	}
	stages, sink := newTestStages(t, DefaultConfig(), w.Bundle())

	tk, d := stages.ProcessTicket(context.Background(), "r1", 1, pendingTicket("a"))

	if tk.Status != ticket.StatusTestFailed {
		t.Errorf("Status = %s, want test_failed", tk.Status)
	}
	if len(d.Failed) != 1 || len(d.Completed) != 0 {
		t.Fatalf("delta = %+v, want failed only", d)
	}
	if d.Failed[0].Stage != StageTest || !strings.Contains(d.Failed[0].Reason, "2 of 10") {
		t.Errorf("outcome = %+v", d.Failed[0])
	}
	if w.Calls(testutil.WorkerReview) != 0 {
		t.Error("reviewer called after a failed test run")
	}
	if len(sink.Named("test_failed")) != 1 {
		t.Error("missing test_failed event")
	}
}

func TestProcessTicket_Escalation(t *testing.T) {
	w := testutil.NewWorkers()
	stages, sink := newTestStages(t, DefaultConfig(), w.Bundle())

	tk := pendingTicket("a")
	tk.Retries = DefaultMaxTicketRetries
	got, d := stages.ProcessTicket(context.Background(), "r1", 4, tk)

	if got.Status != ticket.StatusEscalated {
		t.Errorf("Status = %s, want escalated", got.Status)
	}
	if len(d.Failed) != 1 || len(d.Completed) != 0 {
		t.Errorf("delta = %+v, want failed only", d)
	}
	if w.Total() != 0 {
		t.Errorf("worker calls = %d, want 0", w.Total())
	}
	evs := sink.Named("ticket_escalated")
	if len(evs) != 1 || evs[0].Actor != eventlog.ActorCoder {
		t.Errorf("ticket_escalated events = %+v", evs)
	}
}

func TestCode_Results(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		wantOK  bool
		wantRef string
	}{
		{"pr_reference", `{"branch": "feature/a", "pr_reference": "#12"}`, nil, true, "#12"},
		{"numeric pr_number", `Done! {"branch": "feature/a", "pr_number": 12}`, nil, true, "12"},
		{"pr_url", `{"branch": "feature/a", "pr_url": "https://github.com/acme/app/pull/12"}`, nil, true, "https://github.com/acme/app/pull/12"},
		{"missing pr", `{"branch": "feature/a"}`, nil, false, ""},
		{"missing branch", `{"pr_reference": "12"}`, nil, false, ""},
		{"prose", "I opened a PR for you.", nil, false, ""},
		{"worker error", "", errors.New("cli exited 1"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewWorkers()
			w.Code = func(ticket.Ticket) (string, error) { return tt.reply, tt.err }
			stages, _ := newTestStages(t, DefaultConfig(), w.Bundle())

			tk := pendingTicket("a")
			d := stages.Code(context.Background(), "r1", 1, &tk)

			if tt.wantOK {
				if tk.Status != ticket.StatusInProgress || tk.PRReference != tt.wantRef || len(d.Completed) != 1 {
					t.Errorf("ticket = %+v, delta = %+v", tk, d)
				}
				if tk.Retries != 0 {
					t.Errorf("Retries = %d, want 0", tk.Retries)
				}
				return
			}
			if tk.Status != ticket.StatusPending || tk.Retries != 1 || len(d.Failed) != 1 {
				t.Errorf("ticket = %+v, delta = %+v, want pending with one retry", tk, d)
			}
		})
	}
}

func TestTest_Results(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantPass  bool
		wantError string
	}{
		{"clean", `{"total": 5, "passed": 5, "failed": 0, "coverage": 88}`, true, ""},
		{"failed count as string", `{"total": 5, "passed": 5, "failed": "0"}`, true, ""},
		{"missing failed count", `{"total": 5, "passed": 5}`, false, ""},
		{"unstructured", "everything is fine, trust me", false, "everything is fine, trust me"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewWorkers()
			w.Test = func(ticket.Ticket) (string, error) { return tt.reply, nil }
			stages, _ := newTestStages(t, DefaultConfig(), w.Bundle())

			tk := pendingTicket("a")
			tk.Status = ticket.StatusInProgress
			tk.Branch = "feature/a"
			stages.Test(context.Background(), "r1", 1, &tk)

			if passed := tk.Status == ticket.StatusTested; passed != tt.wantPass {
				t.Errorf("Status = %s, want pass=%v", tk.Status, tt.wantPass)
			}
			if tk.TestResult == nil || tk.TestResult.Error != tt.wantError {
				t.Errorf("TestResult = %+v, want error %q", tk.TestResult, tt.wantError)
			}
		})
	}
}

func TestTest_RawOutputTruncated(t *testing.T) {
	w := testutil.NewWorkers()
	w.Test = func(ticket.Ticket) (string, error) { return strings.Repeat("x", 500), nil }
	stages, _ := newTestStages(t, DefaultConfig(), w.Bundle())

	tk := pendingTicket("a")
	tk.Status = ticket.StatusInProgress
	tk.Branch = "feature/a"
	stages.Test(context.Background(), "r1", 1, &tk)

	if got := len(tk.TestResult.Error); got != 200 {
		t.Errorf("len(Error) = %d, want 200", got)
	}
}

func TestReview_Results(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantOK     bool
		wantReason string
	}{
		{"approved", `{"approved": true, "reason": "LGTM"}`, true, "LGTM"},
		{"rejected", `{"approved": false, "reason": "diff too large"}`, false, "diff too large"},
		{"string true is not approval", `{"approved": "true"}`, false, ""},
		{"unstructured", "Looks good to me", false, "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewWorkers()
			w.Review = func(ticket.Ticket) (string, error) { return tt.reply, nil }
			stages, _ := newTestStages(t, DefaultConfig(), w.Bundle())

			tk := pendingTicket("a")
			tk.Status = ticket.StatusTested
			d := stages.Review(context.Background(), "r1", 1, &tk)

			if tt.wantOK {
				if tk.Status != ticket.StatusApproved || tk.Retries != 0 || len(d.Completed) != 1 {
					t.Errorf("ticket = %+v, delta = %+v", tk, d)
				}
			} else {
				if tk.Status != ticket.StatusReviewRejected || tk.Retries != 1 || len(d.Failed) != 1 {
					t.Errorf("ticket = %+v, delta = %+v", tk, d)
				}
			}
			if tk.ReviewApproved == nil || *tk.ReviewApproved != tt.wantOK {
				t.Errorf("ReviewApproved = %v, want %v", tk.ReviewApproved, tt.wantOK)
			}
			if tt.wantReason != "" && tk.ReviewReason != tt.wantReason {
				t.Errorf("ReviewReason = %q, want %q", tk.ReviewReason, tt.wantReason)
			}
		})
	}
}

func TestReview_CommentsOnPullRequest(t *testing.T) {
	provider := &pr.MockProvider{}
	w := testutil.NewWorkers().RejectingReviews("missing tests")
	stages, _ := newTestStages(t, DefaultConfig(), w.Bundle(), WithPRProvider(provider))

	tk := pendingTicket("T-7")
	tk.Status = ticket.StatusTested
	tk.PRReference = "https://github.com/acme/app/pull/7"
	stages.Review(context.Background(), "r1", 1, &tk)

	got := provider.Comments(7)
	if len(got) != 1 || got[0] != "Changes requested for T-7: missing tests" {
		t.Errorf("comments = %q", got)
	}

	w.Review = nil
	tk.Status = ticket.StatusTested
	stages.Review(context.Background(), "r1", 2, &tk)
	if got := provider.Comments(7); len(got) != 2 || !strings.HasPrefix(got[1], "Approved for T-7") {
		t.Errorf("comments = %q", got)
	}

	bare := pendingTicket("T-8")
	bare.Status = ticket.StatusTested
	stages.Review(context.Background(), "r1", 1, &bare)
	if got := provider.Comments(7); len(got) != 2 {
		t.Errorf("comments = %q, want none added without a pull request", got)
	}
}

func TestReview_CommentFailureIsNotFatal(t *testing.T) {
	provider := &pr.MockProvider{
		AddCommentFunc: func(context.Context, int, string) error { return errors.New("rate limited") },
	}
	stages, sink := newTestStages(t, DefaultConfig(), testutil.NewWorkers().Bundle(), WithPRProvider(provider))

	tk := pendingTicket("a")
	tk.Status = ticket.StatusTested
	tk.PRReference = "#12"
	d := stages.Review(context.Background(), "r1", 1, &tk)

	if tk.Status != ticket.StatusApproved || len(d.Completed) != 1 {
		t.Errorf("ticket = %s, delta = %+v", tk.Status, d)
	}
	if evs := sink.Named("review_comment_failed"); len(evs) != 1 || evs[0].Data["pr"] != "#12" {
		t.Errorf("review_comment_failed events = %+v", evs)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"日本語", 2, ""},
		{"aé", 2, "a"},
		{strings.Repeat("é", 150), 199, strings.Repeat("é", 99)},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestCallWorker_RecoversPanic(t *testing.T) {
	w := testutil.NewWorkers()
	w.Code = func(ticket.Ticket) (string, error) { panic("nil map write") }
	stages, _ := newTestStages(t, DefaultConfig(), w.Bundle())

	tk := pendingTicket("a")
	d := stages.Code(context.Background(), "r1", 1, &tk)

	if len(d.Failed) != 1 || !strings.Contains(d.Failed[0].Reason, "nil map write") {
		t.Errorf("delta = %+v, want failure carrying the panic", d)
	}
	if tk.Status != ticket.StatusPending || tk.Retries != 1 {
		t.Errorf("ticket = %s/%d, want pending/1", tk.Status, tk.Retries)
	}
}

func TestRetryMonotonic(t *testing.T) {
	replies := []string{
		`{"branch": "b", "pr_reference": "1"}`,
		"garbage",
		`{"branch": "b"}`,
		`{"branch": "b", "pr_reference": "1"}`,
	}
	reviews := []string{`{"approved": false}`, `{"approved": true}`}

	w := testutil.NewWorkers()
	var ci, ri int
	w.Code = func(ticket.Ticket) (string, error) { r := replies[ci%len(replies)]; ci++; return r, nil }
	w.Review = func(ticket.Ticket) (string, error) { r := reviews[ri%len(reviews)]; ri++; return r, nil }

	cfg := DefaultConfig()
	cfg.MaxTicketRetries = 10
	stages, _ := newTestStages(t, cfg, w.Bundle())

	tk := pendingTicket("a")
	last := tk.Retries
	for attempt := 1; attempt <= 8 && tk.Status != ticket.StatusApproved; attempt++ {
		tk, _ = stages.ProcessTicket(context.Background(), "r1", attempt, tk)
		if tk.Retries < last {
			t.Fatalf("attempt %d: retries went from %d to %d", attempt, last, tk.Retries)
		}
		last = tk.Retries
		if tk.Status.IsRetryable() {
			if err := tk.Requeue(); err != nil {
				t.Fatalf("Requeue: %v", err)
			}
		}
	}
	if tk.Status != ticket.StatusApproved {
		t.Errorf("Status = %s, want approved eventually", tk.Status)
	}
}

func TestNewStages_Validation(t *testing.T) {
	if _, err := NewStages(Config{}, agent.Offline()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero config error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewStages(DefaultConfig(), agent.Workers{}); !errors.Is(err, agent.ErrMissingWorker) {
		t.Errorf("empty workers error = %v, want ErrMissingWorker", err)
	}
	cfg := DefaultConfig()
	cfg.OfflineMode = true
	if _, err := NewStages(cfg, agent.Workers{}); err != nil {
		t.Errorf("offline mode should supply workers: %v", err)
	}
}
