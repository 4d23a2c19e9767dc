package runner

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpetrovic89/agentic-dev-pipeline/approval"
	"github.com/dpetrovic89/agentic-dev-pipeline/artifact"
	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
	"github.com/dpetrovic89/agentic-dev-pipeline/checkpoint"
	"github.com/dpetrovic89/agentic-dev-pipeline/notify"
	"github.com/dpetrovic89/agentic-dev-pipeline/testutil"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
	"github.com/dpetrovic89/agentic-dev-pipeline/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type alertRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *alertRecorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *alertRecorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type harness struct {
	driver    *Driver
	workers   *testutil.Workers
	artifacts *artifact.Manager
	alerts    *alertRecorder

	mu    sync.Mutex
	nodes []string
}

func (h *harness) Nodes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.nodes...)
}

func newHarness(t *testing.T, cfg workflow.Config, w *testutil.Workers) *harness {
	t.Helper()
	if w == nil {
		w = testutil.NewWorkers()
	}
	stages, err := workflow.NewStages(cfg, w.Bundle(), workflow.WithLogger(discard))
	require.NoError(t, err)

	h := &harness{
		workers:   w,
		artifacts: artifact.NewManager(artifact.Config{BaseDir: t.TempDir()}),
		alerts:    &alertRecorder{},
	}
	h.driver, err = NewDriver(stages, checkpoint.NewMemoryStore(),
		WithArtifacts(h.artifacts),
		WithAlerts(h.alerts),
		WithDriverLogger(discard),
		WithProgress(func(node string) {
			h.mu.Lock()
			h.nodes = append(h.nodes, node)
			h.mu.Unlock()
		}),
	)
	require.NoError(t, err)
	return h
}

func TestNewRunID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-z]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := NewRunID()
		require.NoError(t, err)
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestDriver_OfflineRun(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := workflow.DefaultConfig()
	cfg.OfflineMode = true
	h := newHarness(t, cfg, nil)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, out.Status)
	assert.Equal(t, ExitSuccess, out.Exit)
	assert.False(t, out.Paused())
	assert.Equal(t, []string{
		workflow.NodePlan, workflow.NodeProcessTickets, workflow.NodeHumanGate, workflow.NodeNotify,
	}, h.Nodes())

	assert.True(t, out.State.HumanApproved)
	assert.Equal(t, "offline", out.State.Approver)
	assert.True(t, out.State.NotificationSent)
	require.Len(t, out.Report.Tickets, 1)
	assert.Equal(t, "mock-1", out.Report.Tickets[0].ID)
	assert.Equal(t, ticket.StatusApproved, out.Report.Tickets[0].Status)

	// Offline runs never call the configured workers.
	assert.Zero(t, h.workers.Calls(testutil.WorkerPlan))
	assert.Empty(t, h.alerts.Events())

	for _, name := range []string{artifact.SpecName, artifact.ReportName, artifact.SummaryName, artifact.TestResultName("mock-1")} {
		_, err := h.artifacts.Load(out.RunID, name)
		assert.NoError(t, err, "artifact %s", name)
	}

	var stored Report
	require.NoError(t, h.artifacts.LoadJSON(out.RunID, artifact.ReportName, &stored))
	assert.Equal(t, out.RunID, stored.RunID)
	assert.Equal(t, ExitSuccess, stored.Exit)
}

func TestDriver_Start_BadSpec(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, workflow.DefaultConfig(), nil)

	_, err := h.driver.Start(ctx, "/nonexistent/SPEC.md")
	assert.Error(t, err)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, "  \n\t"))
	assert.ErrorIs(t, err, ErrEmptySpec)
	assert.Equal(t, ExitError, out.Exit)
	assert.Zero(t, h.workers.Calls(testutil.WorkerPlan))
}

func TestDriver_PauseAndApprove(t *testing.T) {
	ctx := testutil.TestContext(t)
	w := testutil.NewWorkers()
	w.Plan = func(string) (string, error) { return testutil.PlanReply("t1", "t2"), nil }
	h := newHarness(t, workflow.DefaultConfig(), w)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)
	require.True(t, out.Paused())
	assert.Equal(t, workflow.NodeHumanGate, out.Next)
	assert.Equal(t, ExitPaused, out.Exit)
	assert.Equal(t, []string{workflow.NodePlan, workflow.NodeProcessTickets, workflow.NodeHumanGate}, h.Nodes())
	assert.Zero(t, w.Calls(testutil.WorkerNotify))

	events := h.alerts.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventApprovalNeeded, events[0].Type)
	assert.Equal(t, out.RunID, events[0].RunID)
	assert.Contains(t, events[0].Message, "pipeline approve "+out.RunID)

	summary, err := h.artifacts.Load(out.RunID, artifact.SummaryName)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Awaiting approval")

	// Resuming without approval replays the gate and stops there again.
	again, err := h.driver.Resume(ctx, out.RunID)
	require.NoError(t, err)
	assert.True(t, again.Paused())
	assert.Equal(t, workflow.NodeHumanGate, again.Next)
	assert.Zero(t, w.Calls(testutil.WorkerNotify))
	assert.Len(t, h.alerts.Events(), 2)
	assert.Equal(t, 1, w.Calls(testutil.WorkerPlan))

	done, err := h.driver.Approve(ctx, out.RunID, " alice ")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, done.Status)
	assert.Equal(t, ExitSuccess, done.Exit)
	assert.Equal(t, "alice", done.State.Approver)
	assert.Equal(t, 1, w.Calls(testutil.WorkerNotify))
	assert.Equal(t, 1, w.Calls(testutil.WorkerPlan))
	assert.Equal(t, 2, w.Calls(testutil.WorkerCode))

	sums := w.Summaries()
	require.Len(t, sums, 1)
	assert.True(t, sums[0].HumanApproved)
	assert.Len(t, sums[0].Completed, 2)

	_, err = h.driver.Approve(ctx, out.RunID, "bob")
	assert.ErrorIs(t, err, ErrNotPaused)

	_, err = h.driver.Resume(ctx, out.RunID)
	assert.ErrorIs(t, err, ErrRunCompleted)
}

func TestDriver_Approve_Errors(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, workflow.DefaultConfig(), nil)

	_, err := h.driver.Approve(ctx, "missing1", "alice")
	assert.ErrorIs(t, err, ErrUnresumable)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)

	_, err = h.driver.Approve(ctx, out.RunID, "   ")
	assert.ErrorIs(t, err, auth.ErrApproverRequired)

	snap, err := h.driver.Status(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusPaused, snap.Status)
	assert.False(t, snap.State.HumanApproved)
}

func TestDriver_EscalatedTicketsFinishWithFailures(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := workflow.DefaultConfig()
	cfg.MaxTicketRetries = 1
	w := testutil.NewWorkers().FailingTests()
	h := newHarness(t, cfg, w)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)
	require.True(t, out.Paused())
	assert.Equal(t, []string{
		workflow.NodePlan, workflow.NodeProcessTickets, workflow.NodePlan, workflow.NodeProcessTickets, workflow.NodeHumanGate,
	}, h.Nodes())

	escalated := out.Report.Escalated()
	require.Len(t, escalated, 1)
	assert.Equal(t, "code: retries exhausted", escalated[0].LastFailure)

	done, err := h.driver.Approve(ctx, out.RunID, "alice")
	require.NoError(t, err)
	assert.Equal(t, ExitFailures, done.Exit)
	assert.Equal(t, 1, w.Calls(testutil.WorkerTest))
}

func TestDriver_LoopLimit(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := workflow.DefaultConfig()
	cfg.MaxGraphLoops = 1
	w := testutil.NewWorkers().RejectingReviews("needs tests")
	h := newHarness(t, cfg, w)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)

	assert.Equal(t, checkpoint.StatusCompleted, out.Status)
	assert.Equal(t, ExitLoopLimit, out.Exit)
	assert.True(t, out.Report.LoopLimited)
	assert.Equal(t, []string{
		workflow.NodePlan, workflow.NodeProcessTickets, workflow.NodePlan, workflow.NodeNotify,
	}, h.Nodes())
	assert.Empty(t, h.alerts.Events())

	sums := w.Summaries()
	require.Len(t, sums, 1)
	assert.True(t, sums[0].LoopLimited)
	assert.False(t, sums[0].HumanApproved)
}

func TestDriver_ListReportDelete(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, workflow.DefaultConfig(), nil)
	spec := testutil.WriteSpec(t, testutil.SampleSpec)

	first, err := h.driver.Start(ctx, spec)
	require.NoError(t, err)
	second, err := h.driver.Start(ctx, spec)
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID)

	runs, err := h.driver.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, info := range runs {
		assert.Equal(t, checkpoint.StatusPaused, info.Status)
		assert.Equal(t, workflow.NodeHumanGate, info.Node)
		assert.Equal(t, 1, info.Tickets)
		assert.Equal(t, 1, info.Approved)
		assert.Equal(t, spec, info.SpecPath)
		assert.False(t, info.Corrupt)
	}

	report, err := h.driver.Report(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, workflow.NodeHumanGate, report.Next)
	assert.Equal(t, ExitPaused, report.Exit)

	require.NoError(t, h.driver.Delete(ctx, first.RunID))
	_, err = h.driver.Status(ctx, first.RunID)
	assert.ErrorIs(t, err, ErrUnresumable)
	_, err = h.artifacts.Load(first.RunID, artifact.ReportName)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	runs, err = h.driver.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, second.RunID, runs[0].RunID)

	assert.ErrorIs(t, h.driver.Delete(ctx, first.RunID), checkpoint.ErrNotFound)
}

func TestDriver_LoopBudgetEndsBeforeIterationCap(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := workflow.DefaultConfig()
	cfg.MaxTicketRetries = 1000
	cfg.MaxGraphLoops = 60
	cfg.MaxParallelCoders = 1
	w := testutil.NewWorkers()
	w.Code = func(ticket.Ticket) (string, error) { return "no json here", nil }
	h := newHarness(t, cfg, w)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)

	assert.Equal(t, ExitLoopLimit, out.Exit)
	assert.True(t, out.State.LoopLimited)
	assert.Equal(t, checkpoint.StatusCompleted, out.Status)
	assert.Equal(t, 60, w.Calls(testutil.WorkerCode))
	assert.Len(t, h.Nodes(), 2*60+2)
	require.Len(t, w.Summaries(), 1)
	assert.True(t, w.Summaries()[0].LoopLimited)
}

func TestDriver_InterruptedRunResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	w := testutil.NewWorkers()
	w.Plan = func(string) (string, error) {
		cancel()
		return testutil.PlanReply("t1"), nil
	}
	h := newHarness(t, workflow.DefaultConfig(), w)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitError, out.Exit)
	assert.Equal(t, checkpoint.StatusFailed, out.Status)
	assert.Equal(t, workflow.NodeProcessTickets, out.Next)
	assert.Equal(t, []string{workflow.NodePlan}, h.Nodes())

	snap, err := h.driver.Status(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, snap.Status)
	assert.True(t, snap.Status.Resumable())
	assert.Equal(t, workflow.NodePlan, snap.Node)
	assert.Equal(t, workflow.NodeProcessTickets, snap.Next)

	resumed, err := h.driver.Resume(testutil.TestContext(t), out.RunID)
	require.NoError(t, err)
	assert.True(t, resumed.Paused())
	assert.Equal(t, 1, w.Calls(testutil.WorkerPlan))
	assert.Equal(t, 1, w.Calls(testutil.WorkerCode))
	assert.Equal(t, []string{
		workflow.NodePlan, workflow.NodeProcessTickets, workflow.NodeHumanGate,
	}, h.Nodes())
}

func TestDriver_RunBusy(t *testing.T) {
	h := newHarness(t, workflow.DefaultConfig(), nil)
	require.NoError(t, h.driver.acquire("r1"))
	defer h.driver.release("r1")

	_, err := h.driver.Resume(testutil.TestContext(t), "r1")
	assert.ErrorIs(t, err, ErrRunBusy)
	_, err = h.driver.Approve(testutil.TestContext(t), "r1", "alice")
	assert.ErrorIs(t, err, ErrRunBusy)
}

func TestDriver_UnreadableCheckpoint(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Save("bad1", workflow.NodeHumanGate, []byte("not a checkpoint")))
	stages, err := workflow.NewStages(workflow.DefaultConfig(), testutil.NewWorkers().Bundle(), workflow.WithLogger(discard))
	require.NoError(t, err)
	d, err := NewDriver(stages, store, WithDriverLogger(discard))
	require.NoError(t, err)

	_, err = d.Resume(ctx, "bad1")
	assert.ErrorIs(t, err, ErrUnresumable)
	assert.ErrorIs(t, err, checkpoint.ErrCorrupt)

	runs, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Corrupt)

	require.NoError(t, d.Delete(ctx, "bad1"))
}

type fakeSource struct {
	signals []approval.Signal
	errs    []error
}

func (f *fakeSource) Listen(ctx context.Context, h approval.Handler) error {
	for _, sig := range f.signals {
		f.errs = append(f.errs, h(ctx, sig))
	}
	return nil
}

func TestDriver_ListenForApprovals(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t, workflow.DefaultConfig(), nil)

	out, err := h.driver.Start(ctx, testutil.WriteSpec(t, testutil.SampleSpec))
	require.NoError(t, err)
	require.True(t, out.Paused())

	src := &fakeSource{signals: []approval.Signal{
		{RunID: out.RunID, Approver: "bob"},
		{RunID: "unknown1", Approver: "bob"},
		{RunID: out.RunID, Approver: "bob"},
	}}
	require.NoError(t, h.driver.ListenForApprovals(ctx, src))

	require.Len(t, src.errs, 3)
	assert.NoError(t, src.errs[0])
	assert.ErrorIs(t, src.errs[1], ErrUnresumable)
	assert.ErrorIs(t, src.errs[2], ErrNotPaused)

	snap, err := h.driver.Status(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, snap.Status)
	assert.Equal(t, "bob", snap.State.Approver)
}
