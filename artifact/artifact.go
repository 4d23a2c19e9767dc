package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrNotFound indicates the artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidName indicates an artifact name that escapes the run directory.
var ErrInvalidName = errors.New("invalid artifact name")

// Standard artifact names.
const (
	SpecName    = "spec.md"
	ReportName  = "report.json"
	SummaryName = "summary.md"
	testsDir    = "tests"
)

// Defaults.
const (
	DefaultBaseDir       = ".pipeline"
	DefaultCompressAbove = 10 * 1024
)

const gzSuffix = ".gz"

// TestResultName is the artifact name of a ticket's test result.
func TestResultName(ticketID string) string {
	return filepath.ToSlash(filepath.Join(testsDir, sanitize(ticketID)+".json"))
}

// Config holds configuration for artifact storage.
type Config struct {
	BaseDir       string // default ".pipeline"
	CompressAbove int64  // compress artifacts of at least this size; default 10KB
}

// Manager saves and loads run artifacts.
type Manager struct {
	baseDir       string
	compressAbove int64
}

// Info describes a stored artifact.
type Info struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	if cfg.BaseDir == "" {
		cfg.BaseDir = DefaultBaseDir
	}
	if cfg.CompressAbove == 0 {
		cfg.CompressAbove = DefaultCompressAbove
	}
	return &Manager{baseDir: cfg.BaseDir, compressAbove: cfg.CompressAbove}
}

// BaseDir returns the storage root.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// RunDir returns the directory of a run.
func (m *Manager) RunDir(runID string) string {
	return filepath.Join(m.baseDir, "runs", sanitize(runID))
}

func (m *Manager) path(runID, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(m.RunDir(runID), clean), nil
}

// Save writes an artifact, compressing it when it is large enough. Any
// previous copy in the other form is removed.
func (m *Manager) Save(runID, name string, data []byte) error {
	p, err := m.path(runID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	if int64(len(data)) >= m.compressAbove {
		_ = os.Remove(p)
		return writeCompressed(p+gzSuffix, data)
	}
	_ = os.Remove(p + gzSuffix)
	return os.WriteFile(p, data, 0o644)
}

// SaveJSON writes v as indented JSON.
func (m *Manager) SaveJSON(runID, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return m.Save(runID, name, append(data, '\n'))
}

// Load reads an artifact, decompressing it if needed.
func (m *Manager) Load(runID, name string) ([]byte, error) {
	p, err := m.path(runID, name)
	if err != nil {
		return nil, err
	}
	data, err := readCompressed(p + gzSuffix)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err = os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, runID, name)
	}
	return data, err
}

// LoadJSON decodes a JSON artifact into v.
func (m *Manager) LoadJSON(runID, name string, v any) error {
	data, err := m.Load(runID, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// List returns the artifacts of a run sorted by name. Names use forward
// slashes.
func (m *Manager) List(runID string) ([]Info, error) {
	root := m.RunDir(runID)
	var infos []Info
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		compressed := strings.HasSuffix(name, gzSuffix)
		infos = append(infos, Info{
			Name:       strings.TrimSuffix(name, gzSuffix),
			Size:       fi.Size(),
			Compressed: compressed,
			ModifiedAt: fi.ModTime(),
		})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// DeleteRun removes every artifact of a run. Deleting a run with no
// artifacts is not an error.
func (m *Manager) DeleteRun(runID string) error {
	return os.RemoveAll(m.RunDir(runID))
}

func writeCompressed(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		return err
	}
	return gz.Close()
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
