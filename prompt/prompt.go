package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed prompts/*.txt
var embedded embed.FS

// Stage prompt names.
const (
	Plan   = "plan"
	Code   = "code"
	Test   = "test"
	Review = "review"
	Notify = "notify"
)

// SourceEmbedded is reported by Source for built-in prompts.
const SourceEmbedded = "embedded"

// ErrNotFound means no layer has a prompt of that name.
var ErrNotFound = errors.New("prompt not found")

type layer struct {
	name string
	fsys fs.FS
}

// Loader renders stage prompts. Project directories shadow the embedded
// defaults. Parsed templates are cached, so edits to override files are
// picked up by a new Loader only. Safe for concurrent use.
type Loader struct {
	layers []layer
	funcs  template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewLoader searches projectDir/.pipeline/prompts, then projectDir/prompts,
// then the embedded defaults.
func NewLoader(projectDir string) *Loader {
	defaults, _ := fs.Sub(embedded, "prompts")
	var layers []layer
	for _, dir := range []string{
		filepath.Join(projectDir, ".pipeline", "prompts"),
		filepath.Join(projectDir, "prompts"),
	} {
		layers = append(layers, layer{name: dir, fsys: os.DirFS(dir)})
	}
	layers = append(layers, layer{name: SourceEmbedded, fsys: defaults})

	return &Loader{
		layers: layers,
		funcs:  funcMap(),
		cache:  make(map[string]*template.Template),
	}
}

// Render executes the named prompt with data.
func (l *Loader) Render(name string, data any) (string, error) {
	tmpl, err := l.template(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// Source reports which layer provides name: an override directory or
// SourceEmbedded.
func (l *Loader) Source(name string) (string, error) {
	src, _, err := l.read(name)
	return src, err
}

// Names lists every prompt available from any layer.
func (l *Loader) Names() []string {
	var names []string
	for _, ly := range l.layers {
		matches, _ := fs.Glob(ly.fsys, "*.txt")
		for _, m := range matches {
			name := strings.TrimSuffix(m, ".txt")
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}

func (l *Loader) template(name string) (*template.Template, error) {
	l.mu.RLock()
	tmpl, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	_, text, err := l.read(name)
	if err != nil {
		return nil, err
	}
	tmpl, err = template.New(name).Funcs(l.funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.mu.Unlock()
	return tmpl, nil
}

func (l *Loader) read(name string) (source, text string, err error) {
	for _, ly := range l.layers {
		data, err := fs.ReadFile(ly.fsys, name+".txt")
		if err == nil {
			return ly.name, string(data), nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"join":    strings.Join,
		"upper":   strings.ToUpper,
		"trim":    strings.TrimSpace,
		"title":   cases.Title(language.English).String,
		"indent":  indent,
		"default": orDefault,
		"json":    compactJSON,
	}
}

// indent prefixes every non-empty line of s.
func indent(n int, s string) string {
	prefix := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// orDefault is used as {{default "fallback" .Value}}.
func orDefault(fallback, value any) any {
	switch v := value.(type) {
	case nil:
		return fallback
	case string:
		if v == "" {
			return fallback
		}
	}
	return value
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
