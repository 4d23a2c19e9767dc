package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
)

const fileExt = ".ckpt"

// FileStore keeps one directory per run and one sealed file per node under
// it. Writes go to a temporary file first and are renamed into place, so a
// crash mid-write leaves the previous checkpoint intact.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func validName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.dir, runID)
}

func (s *FileStore) path(runID, nodeID string) string {
	return filepath.Join(s.dir, runID, nodeID+fileExt)
}

// Save implements Store. The sequence number is one past the highest
// readable checkpoint of the run.
func (s *FileStore) Save(runID, nodeID string, data []byte) error {
	if err := validName("run id", runID); err != nil {
		return err
	}
	if err := validName("node id", nodeID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, _ := s.records(runID, true)
	seq := 1
	if n := len(records); n > 0 {
		seq = records[n-1].Sequence + 1
	}
	out, err := Seal(Record{RunID: runID, NodeID: nodeID, Sequence: seq, SavedAt: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.runDir(runID), 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.runDir(runID), nodeID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(runID, nodeID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(runID, nodeID string) ([]byte, error) {
	if validName("run id", runID) != nil || validName("node id", nodeID) != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(runID, nodeID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	rec, err := openFor(data, runID, nodeID)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// List implements Store. A file that fails verification fails the whole
// listing, so a resume never silently falls back to an older checkpoint.
func (s *FileStore) List(runID string) ([]fgcheckpoint.Info, error) {
	if validName("run id", runID) != nil {
		return nil, nil
	}
	records, err := s.records(runID, false)
	if err != nil {
		return nil, err
	}
	infos := make([]fgcheckpoint.Info, 0, len(records))
	for _, r := range records {
		infos = append(infos, r.info)
	}
	return infos, nil
}

type fileRecord struct {
	Record
	info fgcheckpoint.Info
}

// records reads every checkpoint of a run ordered by sequence.
func (s *FileStore) records(runID string, skipCorrupt bool) ([]fileRecord, error) {
	entries, err := os.ReadDir(s.runDir(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run dir: %w", err)
	}

	var out []fileRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		nodeID := strings.TrimSuffix(e.Name(), fileExt)
		data, err := os.ReadFile(filepath.Join(s.runDir(runID), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read checkpoint: %w", err)
		}
		rec, err := openFor(data, runID, nodeID)
		if err != nil {
			if skipCorrupt {
				continue
			}
			return nil, err
		}
		out = append(out, fileRecord{Record: rec, info: rec.Info(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Delete implements Store.
func (s *FileStore) Delete(runID, nodeID string) error {
	if validName("run id", runID) != nil || validName("node id", nodeID) != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(runID, nodeID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteRun implements Store.
func (s *FileStore) DeleteRun(runID string) error {
	if err := validName("run id", runID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.runDir(runID))
}

// Runs implements Store.
func (s *FileStore) Runs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
