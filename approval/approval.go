package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Errors returned by sources.
var (
	// ErrInvalidSignal indicates a message that is not a usable approval.
	ErrInvalidSignal = errors.New("invalid approval signal")

	// ErrSourceClosed indicates the underlying subscription ended while
	// the context was still live.
	ErrSourceClosed = errors.New("approval source closed")
)

// Signal records that an approver approved a run.
type Signal struct {
	RunID    string    `json:"run_id"`
	Approver string    `json:"approver"`
	At       time.Time `json:"at"`
}

// Handler acts on a received signal.
type Handler func(ctx context.Context, sig Signal) error

// Source delivers approval signals until ctx is cancelled.
type Source interface {
	Listen(ctx context.Context, h Handler) error
}

// ParseSignal decodes a JSON signal. RunID and Approver are required; a
// missing timestamp is set to now.
func ParseSignal(data []byte) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	return normalize(sig)
}

func normalize(sig Signal) (Signal, error) {
	sig.RunID = strings.TrimSpace(sig.RunID)
	sig.Approver = strings.TrimSpace(sig.Approver)
	if sig.RunID == "" {
		return Signal{}, fmt.Errorf("%w: missing run_id", ErrInvalidSignal)
	}
	if sig.Approver == "" {
		return Signal{}, fmt.Errorf("%w: missing approver", ErrInvalidSignal)
	}
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}
	return sig, nil
}

// dispatch parses one raw message and hands it to h. Failures are logged.
func dispatch(ctx context.Context, logger *slog.Logger, source string, data []byte, h Handler) {
	sig, err := ParseSignal(data)
	if err != nil {
		logger.Warn("discarding approval message", "source", source, "error", err)
		return
	}
	deliver(ctx, logger, source, sig, h)
}

func deliver(ctx context.Context, logger *slog.Logger, source string, sig Signal, h Handler) error {
	if err := h(ctx, sig); err != nil {
		logger.Warn("approval not applied", "source", source, "runId", sig.RunID, "approver", sig.Approver, "error", err)
		return err
	}
	logger.Info("approval applied", "source", source, "runId", sig.RunID, "approver", sig.Approver)
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
