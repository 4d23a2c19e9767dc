package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// File suffixes used by DirSource.
const (
	ApproveSuffix  = ".approve"
	RejectedSuffix = ".rejected"
)

// DefaultDirApprover is recorded when an approval file is empty.
const DefaultDirApprover = "filesystem"

const defaultDebounce = 100 * time.Millisecond

// DirSource watches a directory for <runID>.approve files. A file holds the
// approver name or a JSON signal; an empty file approves as
// DefaultDirApprover. Applied files are removed, files whose approval fails
// are renamed to <runID>.rejected.
type DirSource struct {
	Dir      string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Listen implements Source. Files already present when listening starts are
// handled first.
func (s *DirSource) Listen(ctx context.Context, h Handler) error {
	logger := loggerOrDefault(s.Logger)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create approval dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(s.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.Dir, err)
	}
	logger.Info("listening for approvals", "source", "dir", "dir", s.Dir)

	existing, err := filepath.Glob(filepath.Join(s.Dir, "*"+ApproveSuffix))
	if err != nil {
		return err
	}
	for _, path := range existing {
		s.handleFile(ctx, logger, path, h)
	}

	debounce := s.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	// Writers usually create and then fill the file, so events for a path
	// are collected until the directory has been quiet for debounce.
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return ErrSourceClosed
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ApproveSuffix) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(debounce)
		case <-timer.C:
			for path := range pending {
				s.handleFile(ctx, logger, path, h)
				delete(pending, path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrSourceClosed
			}
			logger.Warn("approval dir watcher error", "error", err)
		}
	}
}

func (s *DirSource) handleFile(ctx context.Context, logger *slog.Logger, path string, h Handler) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn("read approval file", "path", path, "error", err)
		return
	}

	runID := strings.TrimSuffix(filepath.Base(path), ApproveSuffix)
	sig, err := signalFromFile(runID, data)
	if err == nil {
		err = deliver(ctx, logger, "dir", sig, h)
	} else {
		logger.Warn("discarding approval file", "path", path, "error", err)
	}

	if err != nil {
		if rerr := os.Rename(path, strings.TrimSuffix(path, ApproveSuffix)+RejectedSuffix); rerr != nil {
			logger.Warn("mark approval file rejected", "path", path, "error", rerr)
		}
		return
	}
	if rerr := os.Remove(path); rerr != nil {
		logger.Warn("remove approval file", "path", path, "error", rerr)
	}
}

// signalFromFile builds a signal for runID from the file contents. The file
// name decides the run, whatever the contents say.
func signalFromFile(runID string, data []byte) (Signal, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var sig Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		sig.RunID = runID
		if strings.TrimSpace(sig.Approver) == "" {
			sig.Approver = DefaultDirApprover
		}
		return normalize(sig)
	}

	approver := string(data)
	if approver == "" {
		approver = DefaultDirApprover
	}
	return normalize(Signal{RunID: runID, Approver: approver})
}
