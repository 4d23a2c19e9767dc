package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// DefaultTimeout bounds waits on listeners and goroutines in tests.
const DefaultTimeout = 5 * time.Second

// TestContext is canceled by t.Cleanup.
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 0)
}

// TestContextWithTimeout is like TestContext but also expires after d when
// d is positive.
func TestContextWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	t.Cleanup(cancel)
	return ctx
}

// FlowContext is TestContext as a flowgraph.Context, for calling graph nodes
// directly.
func FlowContext(t *testing.T) flowgraph.Context {
	t.Helper()
	return flowgraph.NewContext(TestContext(t))
}
