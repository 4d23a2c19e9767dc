package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Actor identifies who produced an event. Worker actors mark failures that
// came from an external collaborator; ActorEngine marks orchestration
// failures.
type Actor string

// Event actors.
const (
	ActorEngine   Actor = "engine"
	ActorPlanner  Actor = "planner"
	ActorCoder    Actor = "coder"
	ActorTester   Actor = "tester"
	ActorReviewer Actor = "reviewer"
	ActorNotifier Actor = "notifier"
	ActorHuman    Actor = "human"
)

// Event is one structured run log record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Event     string         `json:"event"`
	Actor     Actor          `json:"actor"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives run events. Sinks are write-only; the pipeline never reads
// its own log back.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Emit stamps and sends an event, logging (not returning) sink failures so a
// broken log never stops a run.
func Emit(ctx context.Context, sink Sink, runID, event string, actor Actor, data map[string]any) {
	if sink == nil {
		return
	}
	ev := Event{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Event:     event,
		Actor:     actor,
		Data:      data,
	}
	if err := sink.Emit(ctx, ev); err != nil {
		slog.Warn("event log write failed", "runId", runID, "event", event, "error", err)
	}
}

// =============================================================================
// FileSink
// =============================================================================

// FileSink appends events as JSON lines to one file per UTC day,
// named run_YYYYMMDD.jsonl.
type FileSink struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewFileSink creates a sink writing under dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &FileSink{dir: dir, now: time.Now}, nil
}

// Path returns the file events for t are written to.
func (s *FileSink) Path(t time.Time) string {
	return filepath.Join(s.dir, "run_"+t.UTC().Format("20060102")+".jsonl")
}

// Emit implements Sink.
func (s *FileSink) Emit(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(ev.Timestamp), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	return f.Close()
}

// =============================================================================
// SlogSink
// =============================================================================

// SlogSink writes events to a slog logger. Failure events are logged at
// warn level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink over logger (slog.Default() when nil).
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit implements Sink.
func (s *SlogSink) Emit(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	if isFailure(ev.Event) {
		level = slog.LevelWarn
	}
	attrs := []any{"runId", ev.RunID, "actor", string(ev.Actor)}
	for k, v := range ev.Data {
		attrs = append(attrs, k, v)
	}
	s.logger.Log(ctx, level, ev.Event, attrs...)
	return nil
}

var failureEvents = map[string]bool{
	"code_failed":      true,
	"test_failed":      true,
	"review_rejected":  true,
	"ticket_escalated": true,
	"notify_failed":    true,
	"loop_limit":       true,
	"run_failed":       true,
	"merge_failed":     true,
}

func isFailure(event string) bool {
	return failureEvents[event]
}

// =============================================================================
// Composition
// =============================================================================

// MultiSink fans an event out to several sinks. Every sink is attempted;
// the first error is returned.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopSink discards events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, Event) error { return nil }

// MemorySink collects events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (m *MemorySink) Emit(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the collected events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Named returns the collected events with the given name.
func (m *MemorySink) Named(event string) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}
