package workflow

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/telemetry"
)

var workflowMetrics struct {
	outcomes       metric.Int64Counter
	workerDuration metric.Float64Histogram
}

var workflowMetricsOnce sync.Once

func initWorkflowMetrics() {
	m := telemetry.Meter("github.com/dpetrovic89/agentic-dev-pipeline/workflow")
	workflowMetrics.outcomes, _ = m.Int64Counter("pipeline.ticket.outcomes",
		metric.WithDescription("Ticket attempts by final stage and status"),
		metric.WithUnit("{attempt}"),
	)
	workflowMetrics.workerDuration, _ = m.Float64Histogram("pipeline.worker.duration",
		metric.WithDescription("Worker call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func recordOutcome(ctx context.Context, stage Stage, status string) {
	workflowMetricsOnce.Do(initWorkflowMetrics)
	if workflowMetrics.outcomes == nil {
		return
	}
	workflowMetrics.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.stage", string(stage)),
		attribute.String("pipeline.status", status),
	))
}

func recordWorkerDuration(ctx context.Context, actor eventlog.Actor, d time.Duration, failed bool) {
	workflowMetricsOnce.Do(initWorkflowMetrics)
	if workflowMetrics.workerDuration == nil {
		return
	}
	workflowMetrics.workerDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("pipeline.actor", string(actor)),
		attribute.Bool("pipeline.failed", failed),
	))
}
