package telemetry

import (
	"context"
	"testing"
)

func TestInit_DisabledInstallsNoop(t *testing.T) {
	t.Setenv("PIPELINE_OTEL_ENABLED", "")

	if Enabled() {
		t.Fatal("Enabled() = true with env unset")
	}
	if err := Init(context.Background(), "pipeline-test", "dev"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := Tracer("").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer produced a recording span")
	}
	span.End()

	counter, err := Meter("test").Int64Counter("pipeline.test.counter")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 1)

	Shutdown(context.Background())
}
