package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/llmkit/model"

	"github.com/dpetrovic89/agentic-dev-pipeline/git"
	"github.com/dpetrovic89/agentic-dev-pipeline/pr"
	"github.com/dpetrovic89/agentic-dev-pipeline/prompt"
	"github.com/dpetrovic89/agentic-dev-pipeline/task"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// DefaultMaxDiffLines is the review size limit.
const DefaultMaxDiffLines = 400

// LLM implements the planner, coder, tester and reviewer on top of a
// Completer. Each task renders the stage prompt, picks the stage model and
// returns the model's text unchanged.
type LLM struct {
	completer    Completer
	prompts      *prompt.Loader
	selector     *model.Selector
	naming       git.Naming
	prs          pr.Provider
	maxDiffLines int
	maxTokens    int
	logger       *slog.Logger
}

// LLMOption configures an LLM.
type LLMOption func(*LLM)

// WithSelector overrides the per-stage model selection.
func WithSelector(s *model.Selector) LLMOption {
	return func(l *LLM) { l.selector = s }
}

// WithPRProvider lets the reviewer load pull request statistics.
func WithPRProvider(p pr.Provider) LLMOption {
	return func(l *LLM) { l.prs = p }
}

// WithMaxDiffLines sets the largest diff a reviewer may approve.
func WithMaxDiffLines(n int) LLMOption {
	return func(l *LLM) { l.maxDiffLines = n }
}

// WithMaxTokens caps the response length of every call.
func WithMaxTokens(n int) LLMOption {
	return func(l *LLM) { l.maxTokens = n }
}

// WithBranchNaming sets how suggested ticket branches are named.
func WithBranchNaming(n git.Naming) LLMOption {
	return func(l *LLM) { l.naming = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LLMOption {
	return func(l *LLM) { l.logger = logger }
}

// NewLLM creates model-backed workers.
func NewLLM(c Completer, prompts *prompt.Loader, opts ...LLMOption) *LLM {
	l := &LLM{
		completer:    c,
		prompts:      prompts,
		selector:     task.NewSelector(),
		naming:       git.DefaultNaming(),
		maxDiffLines: DefaultMaxDiffLines,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Workers returns the LLM workers with the given tester and notifier. A nil
// tester falls back to asking the model.
func (l *LLM) Workers(tester Tester, notifier Notifier) Workers {
	if tester == nil {
		tester = l
	}
	return Workers{
		Planner:  l,
		Coder:    l,
		Tester:   tester,
		Reviewer: l,
		Notifier: notifier,
	}
}

// Plan implements Planner.
func (l *LLM) Plan(ctx context.Context, spec string) (string, error) {
	return l.complete(ctx, task.Plan, prompt.Plan, map[string]any{"Spec": spec})
}

// Code implements Coder. A retried ticket keeps its branch.
func (l *LLM) Code(ctx context.Context, t ticket.Ticket) (string, error) {
	branch := t.Branch
	if branch == "" {
		branch = l.naming.Branch(t.ID, t.Title)
	}
	return l.complete(ctx, task.Code, prompt.Code, map[string]any{
		"Ticket": t,
		"Branch": branch,
	})
}

// Test implements Tester by asking the model to run the suite.
func (l *LLM) Test(ctx context.Context, t ticket.Ticket) (string, error) {
	return l.complete(ctx, task.Test, prompt.Test, map[string]any{"Ticket": t})
}

// Review implements Reviewer. When a PR provider is configured the pull
// request statistics go into the prompt, and a diff over the size limit is
// rejected without a model call.
func (l *LLM) Review(ctx context.Context, t ticket.Ticket) (string, error) {
	pull := l.loadPR(ctx, t)
	if pull != nil && l.maxDiffLines > 0 && pull.DiffLines() > l.maxDiffLines {
		return rejection(fmt.Sprintf("diff of %d lines exceeds the %d line limit",
			pull.DiffLines(), l.maxDiffLines))
	}
	return l.complete(ctx, task.Review, prompt.Review, map[string]any{
		"Ticket":       t,
		"PR":           pull,
		"MaxDiffLines": l.maxDiffLines,
	})
}

// Compose writes the notification text for a run summary.
func (l *LLM) Compose(ctx context.Context, s Summary) (string, error) {
	text, err := l.complete(ctx, task.Notify, prompt.Notify, map[string]any{"Summary": s})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (l *LLM) loadPR(ctx context.Context, t ticket.Ticket) *pr.PullRequest {
	if l.prs == nil {
		return nil
	}
	n, err := pr.ParseNumber(t.PRReference)
	if err != nil {
		l.logger.Warn("review without PR details", "ticket", t.ID, "error", err)
		return nil
	}
	pull, err := l.prs.GetPR(ctx, n)
	if err != nil {
		if !errors.Is(err, pr.ErrNotFound) {
			l.logger.Warn("load PR failed", "ticket", t.ID, "pr", n, "error", err)
		}
		return nil
	}
	return pull
}

func (l *LLM) complete(ctx context.Context, stage task.Type, name string, vars map[string]any) (string, error) {
	rendered, err := l.prompts.Render(name, vars)
	if err != nil {
		return "", err
	}
	system, body := splitPrompt(rendered)
	m := task.APIModel(l.selector.Select(stage))

	resp, err := l.completer.Complete(ctx, Request{
		Stage:     stage,
		Model:     m,
		System:    system,
		Prompt:    body,
		MaxTokens: l.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	l.logger.Debug("model call",
		"stage", stage,
		"model", m,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp.Text, nil
}

// splitPrompt treats the first paragraph of a stage prompt as the system
// prompt.
func splitPrompt(s string) (system, body string) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n\n"); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+2:])
	}
	return "", s
}

func rejection(reason string) (string, error) {
	b, err := json.Marshal(map[string]any{"approved": false, "reason": reason})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
