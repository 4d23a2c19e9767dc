package workflow

import (
	"errors"
	"fmt"
)

// Default bounds.
const (
	DefaultMaxTicketRetries  = 3
	DefaultMaxGraphLoops     = 5
	DefaultMaxParallelCoders = 4

	// MaxGraphLoopsLimit keeps a run, resumed ones included, inside
	// flowgraph's default iteration budget.
	MaxGraphLoopsLimit = 400
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid workflow config")

// Config bounds a run. It is passed explicitly to every stage.
type Config struct {
	// MaxTicketRetries is the number of failed attempts after which a
	// ticket is escalated instead of coded again.
	MaxTicketRetries int
	// MaxGraphLoops bounds plan re-entries; exceeding it routes to notify.
	MaxGraphLoops int
	// MaxParallelCoders is both the batch size and the concurrency limit
	// of one fan-out.
	MaxParallelCoders int
	// OfflineMode swaps every worker for canned responses and auto-approves
	// the human gate.
	OfflineMode bool
	// MergeOnApproval merges approved pull requests after the human gate.
	MergeOnApproval bool
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MaxTicketRetries:  DefaultMaxTicketRetries,
		MaxGraphLoops:     DefaultMaxGraphLoops,
		MaxParallelCoders: DefaultMaxParallelCoders,
	}
}

// Validate checks the bounds.
func (c Config) Validate() error {
	var errs []error
	if c.MaxTicketRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: max_ticket_retries must be >= 0, got %d", ErrInvalidConfig, c.MaxTicketRetries))
	}
	if c.MaxGraphLoops < 1 || c.MaxGraphLoops > MaxGraphLoopsLimit {
		errs = append(errs, fmt.Errorf("%w: max_graph_loops must be between 1 and %d, got %d", ErrInvalidConfig, MaxGraphLoopsLimit, c.MaxGraphLoops))
	}
	if c.MaxParallelCoders < 1 {
		errs = append(errs, fmt.Errorf("%w: max_parallel_coders must be >= 1, got %d", ErrInvalidConfig, c.MaxParallelCoders))
	}
	return errors.Join(errs...)
}
