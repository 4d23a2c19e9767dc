package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Naming of the files and variables the resolver reads.
const (
	EnvPrefix       = "PIPELINE_"
	GlobalConfigDir = "agentic-pipeline"
	GlobalFileName  = "config.yaml"
	LocalFileName   = ".pipeline.yaml"
)

// Paths locates the config files. Empty fields are discovered: the global
// file under the user's config directory and the local file in the git
// root above WorkDir (default ".").
type Paths struct {
	Global  string
	Local   string
	WorkDir string

	// ErrWriter receives warnings about unreadable files. Defaults to
	// os.Stderr.
	ErrWriter io.Writer
}

// Resolver merges the config layers.
type Resolver struct {
	globalPath string
	localPath  string
	gitRoot    string
	errWriter  io.Writer
	getenv     func(string) string

	// Warnings collects non-fatal issues seen during resolution.
	Warnings []string
}

// NewResolver creates a resolver for the given paths.
func NewResolver(p Paths) *Resolver {
	r := &Resolver{
		globalPath: p.Global,
		localPath:  p.Local,
		errWriter:  p.ErrWriter,
		getenv:     os.Getenv,
	}
	if r.errWriter == nil {
		r.errWriter = os.Stderr
	}

	workDir := p.WorkDir
	if workDir == "" {
		workDir = "."
	}
	r.gitRoot = findGitRoot(workDir)
	if r.localPath == "" && r.gitRoot != "" {
		r.localPath = filepath.Join(r.gitRoot, LocalFileName)
	}
	if r.globalPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			r.globalPath = filepath.Join(home, ".config", GlobalConfigDir, GlobalFileName)
		}
	}
	return r
}

// GitRoot returns the detected git root, or "" outside a repository.
func (r *Resolver) GitRoot() string { return r.gitRoot }

// GlobalPath returns the global config file path.
func (r *Resolver) GlobalPath() string { return r.globalPath }

// LocalPath returns the local config file path, or "" when there is none.
func (r *Resolver) LocalPath() string { return r.localPath }

func (r *Resolver) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
	fmt.Fprintf(r.errWriter, "Warning: %s\n", msg)
}

// Resolved is the merged configuration.
type Resolved struct {
	values  map[string]string
	sources map[string]Source
}

// Get returns the value for a key.
func (c *Resolved) Get(key string) string { return c.values[key] }

// Source returns where a key's value came from.
func (c *Resolved) Source(key string) Source { return c.sources[key] }

// GetWithSource returns the value and its source.
func (c *Resolved) GetWithSource(key string) (string, Source) {
	return c.values[key], c.sources[key]
}

// All returns a copy of every key-value pair.
func (c *Resolved) All() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Resolve merges defaults, the global file, the local file, the
// environment and flags, in that order. Empty flag values are ignored.
func (r *Resolver) Resolve(flags map[string]string) *Resolved {
	c := &Resolved{
		values:  make(map[string]string, len(Defaults)),
		sources: make(map[string]Source, len(Defaults)),
	}
	for k, v := range Defaults {
		c.set(k, v, SourceDefault)
	}

	r.applyFile(c, r.globalPath, SourceGlobal)
	r.applyFile(c, r.localPath, SourceLocal)
	r.applyEnv(c)

	for k, v := range flags {
		if v != "" && IsKnown(k) {
			c.set(k, v, SourceFlag)
		}
	}
	return c
}

func (c *Resolved) set(key, value string, src Source) {
	c.values[key] = value
	c.sources[key] = src
}

func (r *Resolver) applyFile(c *Resolved, path string, src Source) {
	if path == "" {
		return
	}
	values, err := readFile(path)
	if err != nil {
		r.warn(err.Error())
		return
	}
	for k, v := range values {
		if !IsKnown(k) {
			r.warn(fmt.Sprintf("%s: unknown key %q", path, k))
			continue
		}
		if src == SourceLocal && IsSecret(k) {
			r.warn(fmt.Sprintf("%s: %s is a secret and is ignored in local config", path, k))
			continue
		}
		if s := toString(v); s != "" {
			c.set(k, s, src)
		}
	}
}

func (r *Resolver) applyEnv(c *Resolved) {
	for key := range Defaults {
		if v := r.getenv(EnvName(key)); v != "" {
			c.set(key, v, SourceEnv)
			continue
		}
		if c.sources[key] != SourceDefault {
			continue
		}
		for _, alias := range envAliases[key] {
			if v := r.getenv(alias); v != "" {
				c.set(key, v, SourceEnv)
				break
			}
		}
	}
}

// EnvName returns the environment variable for key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// readFile loads a YAML config file. A missing file is empty.
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return parsed, nil
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool, int, int64, float64:
		return fmt.Sprint(val)
	default:
		return ""
	}
}

// findGitRoot walks up from startDir looking for a .git entry.
func findGitRoot(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
