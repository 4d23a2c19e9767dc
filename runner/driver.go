package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/dpetrovic89/agentic-dev-pipeline/artifact"
	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
	"github.com/dpetrovic89/agentic-dev-pipeline/checkpoint"
	"github.com/dpetrovic89/agentic-dev-pipeline/notify"
	"github.com/dpetrovic89/agentic-dev-pipeline/telemetry"
	"github.com/dpetrovic89/agentic-dev-pipeline/workflow"
)

var (
	// ErrNotPaused is returned when approving a run that is not waiting for
	// approval.
	ErrNotPaused = errors.New("run is not awaiting approval")

	// ErrEmptySpec is returned when the spec file has no content.
	ErrEmptySpec = errors.New("spec is empty")

	// ErrUnresumable wraps checkpoint.ErrNotFound, checkpoint.ErrCorrupt and
	// flowgraph's decode errors when a run cannot be continued from storage.
	ErrUnresumable = errors.New("run cannot be resumed")

	// ErrRunBusy is returned when a run is already executing in this process.
	ErrRunBusy = errors.New("run is already executing")

	// ErrRunCompleted is returned when resuming a run that reached the end.
	ErrRunCompleted = errors.New("run already completed")
)

// Outcome is the result of one Start, Resume or Approve call.
type Outcome struct {
	RunID  string
	Status checkpoint.Status
	// Next is the node a resume executes first.
	Next   string
	State  workflow.State
	Exit   ExitStatus
	Report Report
}

// Paused reports whether the run is waiting for approval.
func (o Outcome) Paused() bool {
	return o.Status == checkpoint.StatusPaused
}

// Snapshot is the stored view of a run, read from its latest checkpoint.
type Snapshot struct {
	RunID string
	// Node is the last node that completed.
	Node string
	// Next is the node a resume executes first, empty once completed.
	Next      string
	Status    checkpoint.Status
	Sequence  int
	UpdatedAt time.Time
	State     workflow.State
}

// RunInfo is the listing view of a stored run.
type RunInfo struct {
	RunID     string            `json:"runId"`
	Node      string            `json:"node"`
	Status    checkpoint.Status `json:"status"`
	Step      int               `json:"step"`
	Tickets   int               `json:"tickets"`
	Approved  int               `json:"approved"`
	SpecPath  string            `json:"specPath,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
	// Corrupt is set when the stored state could not be decoded.
	Corrupt bool `json:"corrupt,omitempty"`
}

// Driver runs the pipeline graph against a checkpoint store.
type Driver struct {
	graph         *flowgraph.CompiledGraph[workflow.State]
	store         checkpoint.Store
	maxIterations int
	artifacts     *artifact.Manager
	alerts        notify.Notifier
	progress      func(node string)
	logger        *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// Option configures a Driver.
type Option func(*Driver)

// WithArtifacts stores report.json, summary.md and test results per run.
func WithArtifacts(m *artifact.Manager) Option {
	return func(d *Driver) { d.artifacts = m }
}

// WithAlerts sends an approval_needed event whenever a run pauses.
func WithAlerts(n notify.Notifier) Option {
	return func(d *Driver) { d.alerts = n }
}

// WithProgress is called with the name of every node as it completes.
func WithProgress(fn func(node string)) Option {
	return func(d *Driver) { d.progress = fn }
}

// WithDriverLogger sets the logger.
func WithDriverLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// NewDriver compiles the workflow for stages on top of store. Node
// executions per call are capped by the stages' loop budget.
func NewDriver(stages *workflow.Stages, store checkpoint.Store, opts ...Option) (*Driver, error) {
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	g, err := workflow.Build(stages)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	d := &Driver{
		graph:         g,
		maxIterations: workflow.MaxIterations(stages.Config()),
		logger:        slog.Default(),
		active:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.store = &observedStore{Store: store, onSave: d.observe}
	return d, nil
}

// Start reads the spec file and executes a new run until it completes,
// pauses or fails.
func (d *Driver) Start(ctx context.Context, specPath string) (Outcome, error) {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return Outcome{Exit: ExitError}, fmt.Errorf("read spec: %w", err)
	}
	spec := string(data)
	if strings.TrimSpace(spec) == "" {
		return Outcome{Exit: ExitError}, fmt.Errorf("%w: %s", ErrEmptySpec, specPath)
	}

	runID, err := NewRunID()
	if err != nil {
		return Outcome{Exit: ExitError}, fmt.Errorf("generate run id: %w", err)
	}
	if err := d.acquire(runID); err != nil {
		return Outcome{RunID: runID, Exit: ExitError}, err
	}
	defer d.release(runID)
	d.saveArtifact(runID, artifact.SpecName, data)

	d.logger.Info("run starting", "runId", runID, "spec", specPath)
	st, err := d.graph.Run(d.flowContext(ctx, runID), workflow.NewState(runID, specPath, spec),
		flowgraph.WithCheckpointing(d.store),
		flowgraph.WithRunID(runID),
		flowgraph.WithMaxIterations(d.maxIterations),
		flowgraph.WithObservabilityLogger(d.logger),
		flowgraph.WithTracing(telemetry.Enabled()),
		flowgraph.WithMetrics(telemetry.Enabled()),
	)
	return d.finish(ctx, runID, st, err)
}

// Resume continues a stored run. A paused run without approval replays the
// gate, which asks for approval again.
func (d *Driver) Resume(ctx context.Context, runID string) (Outcome, error) {
	if err := d.acquire(runID); err != nil {
		return Outcome{RunID: runID, Exit: ExitError}, err
	}
	defer d.release(runID)

	snap, err := d.load(runID)
	if err != nil {
		return Outcome{RunID: runID, Exit: ExitError}, err
	}
	if snap.Status == checkpoint.StatusCompleted {
		return Outcome{RunID: runID, Status: snap.Status, State: snap.State, Exit: ExitError},
			fmt.Errorf("%w: %s", ErrRunCompleted, runID)
	}

	d.logger.Info("run resuming", "runId", runID, "next", snap.Next)
	fgctx := d.flowContext(ctx, runID)
	var st workflow.State
	if snap.Status == checkpoint.StatusPaused {
		st, err = d.graph.ResumeFrom(fgctx, d.store, runID, workflow.NodeHumanGate, flowgraph.WithReplayNode())
	} else {
		st, err = d.graph.Resume(fgctx, d.store, runID)
	}
	return d.finish(ctx, runID, st, unresumable(runID, err))
}

// Approve records approver's approval of a paused run and continues it
// from the gate.
func (d *Driver) Approve(ctx context.Context, runID, approver string) (Outcome, error) {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return Outcome{RunID: runID, Exit: ExitError}, auth.ErrApproverRequired
	}
	if err := d.acquire(runID); err != nil {
		return Outcome{RunID: runID, Exit: ExitError}, err
	}
	defer d.release(runID)

	snap, err := d.load(runID)
	if err != nil {
		return Outcome{RunID: runID, Exit: ExitError}, err
	}
	if snap.Status != checkpoint.StatusPaused {
		return Outcome{RunID: runID, Status: snap.Status, State: snap.State, Exit: ExitError},
			fmt.Errorf("%w: %s is %s", ErrNotPaused, runID, snap.Status)
	}

	d.logger.Info("run approved", "runId", runID, "approver", approver)
	st, err := d.graph.ResumeFrom(d.flowContext(ctx, runID), d.store, runID, workflow.NodeHumanGate,
		workflow.Approved(approver),
		flowgraph.WithReplayNode(),
	)
	return d.finish(ctx, runID, st, unresumable(runID, err))
}

// Status loads the stored snapshot of a run.
func (d *Driver) Status(_ context.Context, runID string) (Snapshot, error) {
	return d.snapshot(runID)
}

// Report builds the report for a stored run.
func (d *Driver) Report(_ context.Context, runID string) (Report, error) {
	snap, err := d.snapshot(runID)
	if err != nil {
		return Report{}, err
	}
	return NewReport(snap.State, snap.Status, snap.Next), nil
}

// List returns every stored run, most recently updated first.
func (d *Driver) List(_ context.Context) ([]RunInfo, error) {
	ids, err := d.store.Runs()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	infos := make([]RunInfo, 0, len(ids))
	for _, id := range ids {
		snap, err := d.snapshot(id)
		if err != nil {
			infos = append(infos, RunInfo{RunID: id, Status: checkpoint.StatusFailed, Corrupt: true})
			continue
		}
		infos = append(infos, RunInfo{
			RunID:     id,
			Node:      snap.Node,
			Status:    snap.Status,
			Step:      snap.Sequence,
			Tickets:   len(snap.State.Tickets),
			Approved:  len(snap.State.Summary().Completed),
			SpecPath:  snap.State.SpecPath,
			UpdatedAt: snap.UpdatedAt,
		})
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos, nil
}

// Delete removes a run's checkpoints and artifacts.
func (d *Driver) Delete(_ context.Context, runID string) error {
	if err := d.acquire(runID); err != nil {
		return err
	}
	defer d.release(runID)

	infos, err := d.store.List(runID)
	if err != nil && !errors.Is(err, checkpoint.ErrCorrupt) {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if err == nil && len(infos) == 0 {
		return fmt.Errorf("%w: %s", checkpoint.ErrNotFound, runID)
	}
	if err := d.store.DeleteRun(runID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	if d.artifacts != nil {
		if err := d.artifacts.DeleteRun(runID); err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
	}
	d.logger.Info("run deleted", "runId", runID)
	return nil
}

func (d *Driver) flowContext(ctx context.Context, runID string) flowgraph.Context {
	return flowgraph.NewContext(ctx,
		flowgraph.WithLogger(d.logger.With("runId", runID)),
		flowgraph.WithContextRunID(runID),
	)
}

func (d *Driver) acquire(runID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[runID]; ok {
		return fmt.Errorf("%w: %s", ErrRunBusy, runID)
	}
	d.active[runID] = struct{}{}
	return nil
}

func (d *Driver) release(runID string) {
	d.mu.Lock()
	delete(d.active, runID)
	d.mu.Unlock()
}

func (d *Driver) running(runID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[runID]
	return ok
}

// snapshot is load with runs executing in this process reported as running.
func (d *Driver) snapshot(runID string) (Snapshot, error) {
	snap, err := d.load(runID)
	if err == nil && snap.Status == checkpoint.StatusFailed && d.running(runID) {
		snap.Status = checkpoint.StatusRunning
	}
	return snap, err
}

// load reads a run's latest checkpoint. A run parked at the gate is paused,
// a run whose last checkpoint leads to the end is completed, and anything
// else stopped before reaching the end.
func (d *Driver) load(runID string) (Snapshot, error) {
	cp, err := checkpoint.Latest(d.store, runID)
	if err != nil {
		return Snapshot{}, unresumable(runID, err)
	}
	var st workflow.State
	if err := json.Unmarshal(cp.State, &st); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrUnresumable, runID, checkpoint.ErrCorrupt)
	}

	snap := Snapshot{
		RunID:     runID,
		Node:      cp.NodeID,
		Next:      cp.NextNode,
		Sequence:  cp.Sequence,
		UpdatedAt: cp.Timestamp,
		State:     st,
	}
	switch {
	case workflow.AwaitingApproval(cp.NodeID, cp.NextNode, st):
		snap.Status = checkpoint.StatusPaused
		snap.Next = workflow.NodeHumanGate
	case cp.NextNode == flowgraph.END:
		snap.Status = checkpoint.StatusCompleted
		snap.Next = ""
	default:
		snap.Status = checkpoint.StatusFailed
	}
	return snap, nil
}

func unresumable(runID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, checkpoint.ErrCorrupt),
		errors.Is(err, flowgraph.ErrNoCheckpoints),
		errors.Is(err, flowgraph.ErrDeserializeState),
		errors.Is(err, flowgraph.ErrCheckpointVersionMismatch):
		return fmt.Errorf("%w: %s: %w", ErrUnresumable, runID, err)
	default:
		return err
	}
}

// observe is called for every checkpoint written, i.e. every completed node.
func (d *Driver) observe(runID, node string) {
	d.logger.Debug("node finished", "runId", runID, "node", node)
	if d.progress != nil {
		d.progress(node)
	}
}

// finish turns a graph result into an Outcome, writes artifacts and
// announces paused runs.
func (d *Driver) finish(ctx context.Context, runID string, st workflow.State, runErr error) (Outcome, error) {
	out := Outcome{RunID: runID, State: st}
	if runErr != nil {
		out.Exit = ExitError
		if errors.Is(runErr, ErrUnresumable) {
			return out, runErr
		}
		var maxErr *flowgraph.MaxIterationsError
		if errors.As(runErr, &maxErr) {
			if ms, ok := maxErr.State.(workflow.State); ok {
				out.State = ms
			}
		}
		out.Status = checkpoint.StatusFailed
		if cp, err := checkpoint.Latest(d.store, runID); err == nil {
			out.Next = cp.NextNode
		} else {
			out.Next = workflow.NodePlan
		}
		out.Report = NewReport(out.State, out.Status, out.Next)
		out.Report.Exit = ExitError
		d.writeArtifacts(out.Report, out.State)
		d.logger.Error("run stopped", "runId", runID, "next", out.Next, "error", runErr)
		return out, runErr
	}

	cp, err := checkpoint.Latest(d.store, runID)
	if err != nil {
		out.Exit = ExitError
		return out, unresumable(runID, err)
	}
	out.Status = checkpoint.StatusCompleted
	if workflow.AwaitingApproval(cp.NodeID, cp.NextNode, st) {
		out.Status = checkpoint.StatusPaused
		out.Next = workflow.NodeHumanGate
	}

	out.Exit = ExitFor(out.Status, st)
	out.Report = NewReport(st, out.Status, out.Next)
	d.writeArtifacts(out.Report, st)

	d.logger.Info("run finished", "runId", runID, "status", out.Status, "exit", out.Exit.String(), "step", cp.Sequence)
	if out.Paused() {
		d.requestApproval(ctx, out.Report)
	}
	return out, nil
}

func (d *Driver) writeArtifacts(r Report, st workflow.State) {
	if d.artifacts == nil {
		return
	}
	if err := d.artifacts.SaveJSON(r.RunID, artifact.ReportName, r); err != nil {
		d.logger.Warn("save report failed", "runId", r.RunID, "error", err)
	}
	d.saveArtifact(r.RunID, artifact.SummaryName, []byte(r.Markdown()))
	for _, t := range st.Tickets {
		if t.TestResult == nil {
			continue
		}
		if err := d.artifacts.SaveJSON(r.RunID, artifact.TestResultName(t.ID), t.TestResult); err != nil {
			d.logger.Warn("save test result failed", "runId", r.RunID, "ticket", t.ID, "error", err)
		}
	}
}

func (d *Driver) saveArtifact(runID, name string, data []byte) {
	if d.artifacts == nil {
		return
	}
	if err := d.artifacts.Save(runID, name, data); err != nil {
		d.logger.Warn("save artifact failed", "runId", runID, "name", name, "error", err)
	}
}

// requestApproval is best effort; a delivery failure leaves the run paused
// as it is.
func (d *Driver) requestApproval(ctx context.Context, r Report) {
	if d.alerts == nil {
		return
	}
	event := notify.Event{
		Type:      notify.EventApprovalNeeded,
		RunID:     r.RunID,
		Title:     fmt.Sprintf("Pipeline run %s is awaiting approval", r.RunID),
		Message:   fmt.Sprintf("Approve with: pipeline approve %s", r.RunID),
		Severity:  notify.SeverityInfo,
		Timestamp: time.Now(),
		Fields: []notify.Field{
			{Title: "Progress", Value: r.Progress},
			{Title: "Escalated", Value: strconv.Itoa(len(r.Escalated()))},
			{Title: "Loops", Value: strconv.Itoa(r.LoopCount)},
		},
	}
	if err := d.alerts.Notify(ctx, event); err != nil {
		d.logger.Warn("approval request not delivered", "runId", r.RunID, "error", err)
	}
}

// observedStore reports every saved checkpoint to onSave.
type observedStore struct {
	checkpoint.Store
	onSave func(runID, node string)
}

func (s *observedStore) Save(runID, nodeID string, data []byte) error {
	if err := s.Store.Save(runID, nodeID, data); err != nil {
		return err
	}
	s.onSave(runID, nodeID)
	return nil
}
