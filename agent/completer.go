package agent

import (
	"context"
	"sync"

	"github.com/randalmurphal/llmkit/claude"

	"github.com/dpetrovic89/agentic-dev-pipeline/task"
)

// Request is one model call.
type Request struct {
	Stage     task.Type
	Model     string // API model identifier
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the text a model returned with its token usage.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Completer sends a single prompt to a model.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// =============================================================================
// Claude CLI
// =============================================================================

// ClaudeCLICompleter runs prompts through the Claude CLI in a working
// directory, so coding tasks can edit the checkout, commit and push. One CLI
// client is kept per model.
type ClaudeCLICompleter struct {
	mu        sync.Mutex
	clients   map[string]claude.Client
	newClient func(model string) claude.Client
}

// NewClaudeCLICompleter creates a completer whose CLI sessions run in workdir.
func NewClaudeCLICompleter(workdir string) *ClaudeCLICompleter {
	return newClaudeCLICompleter(func(model string) claude.Client {
		return claude.NewClaudeCLI(
			claude.WithModel(model),
			claude.WithWorkdir(workdir),
			claude.WithDangerouslySkipPermissions(), // Non-interactive mode for automation
		)
	})
}

func newClaudeCLICompleter(newClient func(model string) claude.Client) *ClaudeCLICompleter {
	return &ClaudeCLICompleter{
		clients:   make(map[string]claude.Client),
		newClient: newClient,
	}
}

// Complete implements Completer.
func (c *ClaudeCLICompleter) Complete(ctx context.Context, req Request) (Response, error) {
	result, err := c.client(req.Model).Complete(ctx, claude.CompletionRequest{
		SystemPrompt: req.System,
		Messages:     []claude.Message{{Role: claude.RoleUser, Content: req.Prompt}},
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Text:         result.Content,
		InputTokens:  int64(result.Usage.InputTokens),
		OutputTokens: int64(result.Usage.OutputTokens),
	}, nil
}

func (c *ClaudeCLICompleter) client(model string) claude.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[model]; ok {
		return cl
	}
	cl := c.newClient(model)
	c.clients[model] = cl
	return cl
}
