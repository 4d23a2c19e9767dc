package checkpoint

import (
	"errors"
	"fmt"

	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
)

// Errors returned by stores and the codec.
var (
	// ErrNotFound means no checkpoint exists for the run or node.
	ErrNotFound = fgcheckpoint.ErrNotFound

	// ErrCorrupt means a checkpoint exists but cannot be trusted: the
	// checksum does not match, the payload does not decode, or it was
	// stored under another run or node.
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// Status is the driver's view of a stored run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Resumable reports whether a run in this status can be continued.
func (s Status) Resumable() bool {
	return s == StatusRunning || s == StatusPaused || s == StatusFailed
}

// Store is a flowgraph checkpoint store that can also enumerate its runs.
type Store interface {
	fgcheckpoint.Store

	// Runs returns the IDs of every run with at least one checkpoint.
	Runs() ([]string, error)
}

// Latest loads the most recent checkpoint of a run, the one a resume
// continues from.
func Latest(store fgcheckpoint.Store, runID string) (*fgcheckpoint.Checkpoint, error) {
	infos, err := store.List(runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s: %w", runID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return At(store, runID, infos[len(infos)-1].NodeID)
}

// At loads the checkpoint a run wrote after nodeID.
func At(store fgcheckpoint.Store, runID, nodeID string) (*fgcheckpoint.Checkpoint, error) {
	data, err := store.Load(runID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s/%s: %w", runID, nodeID, err)
	}
	cp, err := fgcheckpoint.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, runID, nodeID, err)
	}
	if cp.Version != fgcheckpoint.Version {
		return nil, fmt.Errorf("%w: %s/%s: version %d", ErrCorrupt, runID, nodeID, cp.Version)
	}
	return cp, nil
}
