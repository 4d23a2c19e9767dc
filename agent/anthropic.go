package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/dpetrovic89/agentic-dev-pipeline/telemetry"
)

const (
	defaultMaxTokens      = 4096
	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
)

// ErrAPIKeyRequired is returned when no Anthropic API key is configured.
var ErrAPIKeyRequired = errors.New("anthropic API key required")

// AnthropicCompleter calls the Anthropic Messages API. Rate limits, server
// errors and network timeouts are retried with exponential backoff.
type AnthropicCompleter struct {
	client         anthropic.Client
	maxRetries     uint64
	initialBackoff time.Duration
}

// NewAnthropicCompleter creates a completer for the given API key.
func NewAnthropicCompleter(apiKey string, opts ...option.RequestOption) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	llmMetricsOnce.Do(initLLMMetrics)

	return &AnthropicCompleter{
		client:         anthropic.NewClient(opts...),
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}, nil
}

// llmMetrics holds lazily-initialized OTel instruments for model calls.
var llmMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var llmMetricsOnce sync.Once

func initLLMMetrics() {
	m := telemetry.Meter("github.com/dpetrovic89/agentic-dev-pipeline/agent")
	llmMetrics.inputTokens, _ = m.Int64Counter("pipeline.llm.input_tokens",
		metric.WithDescription("Model input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	llmMetrics.outputTokens, _ = m.Int64Counter("pipeline.llm.output_tokens",
		metric.WithDescription("Model output tokens generated"),
		metric.WithUnit("{token}"),
	)
	llmMetrics.duration, _ = m.Float64Histogram("pipeline.llm.request.duration",
		metric.WithDescription("Model request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	tracer := telemetry.Tracer("github.com/dpetrovic89/agentic-dev-pipeline/agent")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline.llm.model", req.Model),
		attribute.String("pipeline.stage", string(req.Stage)),
	)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, a.maxRetries), ctx)

	var message *anthropic.Message
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		t0 := time.Now()
		m, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		a.record(ctx, req.Model, m, float64(time.Since(t0).Milliseconds()))
		message = m
		return nil
	}, policy)
	span.SetAttributes(attribute.Int("pipeline.llm.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("anthropic request after %d attempts: %w", attempts, err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return Response{
				Text:         block.Text,
				InputTokens:  message.Usage.InputTokens,
				OutputTokens: message.Usage.OutputTokens,
			}, nil
		}
	}
	return Response{}, fmt.Errorf("unexpected response format: no text block")
}

func (a *AnthropicCompleter) record(ctx context.Context, model string, m *anthropic.Message, ms float64) {
	if llmMetrics.inputTokens == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pipeline.llm.model", model))
	llmMetrics.inputTokens.Add(ctx, m.Usage.InputTokens, attrs)
	llmMetrics.outputTokens.Add(ctx, m.Usage.OutputTokens, attrs)
	llmMetrics.duration.Record(ctx, ms, attrs)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
