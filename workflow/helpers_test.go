package workflow

import (
	"testing"

	"github.com/dpetrovic89/agentic-dev-pipeline/agent"
	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

func newTestStages(t *testing.T, cfg Config, w agent.Workers, opts ...Option) (*Stages, *eventlog.MemorySink) {
	t.Helper()
	sink := &eventlog.MemorySink{}
	stages, err := NewStages(cfg, w, append([]Option{WithEventSink(sink)}, opts...)...)
	if err != nil {
		t.Fatalf("NewStages() error = %v", err)
	}
	return stages, sink
}

func pendingTicket(id string) ticket.Ticket {
	return ticket.New(id, "Ticket "+id, nil, ticket.ComplexitySmall)
}
