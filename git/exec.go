package git

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// Runner executes an external program in dir and returns its trimmed,
// combined output. The local tester shares it for the test command.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// SystemRunner runs real processes.
type SystemRunner struct{}

func (SystemRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	raw, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(raw))
	if err != nil {
		return out, &ExitError{Name: name, Output: out, Err: err}
	}
	return out, nil
}

// ExitError keeps the output of a program that failed.
type ExitError struct {
	Name   string
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	switch {
	case e.Output != "":
		return e.Output
	case e.Err != nil:
		return e.Name + ": " + e.Err.Error()
	default:
		return e.Name + ": failed"
	}
}

func (e *ExitError) Unwrap() error { return e.Err }

// Invocation is one call seen by a FakeRunner.
type Invocation struct {
	Dir  string
	Name string
	Args []string
}

type reply struct {
	out string
	err error
}

// FakeRunner answers from registered replies. A reply registered for the
// full command line wins over one for the program name alone; anything
// else succeeds with empty output unless Fallback is set.
type FakeRunner struct {
	mu       sync.Mutex
	replies  map[string]reply
	fallback *reply
	calls    []Invocation
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{replies: map[string]reply{}}
}

// Reply registers output and err for name with exactly args. With no args
// it matches every invocation of name.
func (f *FakeRunner) Reply(out string, err error, name string, args ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[lineOf(name, args)] = reply{out, err}
	return f
}

// Fallback answers every invocation nothing else matched.
func (f *FakeRunner) Fallback(out string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = &reply{out, err}
	return f
}

func (f *FakeRunner) Run(_ context.Context, dir, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Invocation{Dir: dir, Name: name, Args: slices.Clone(args)})

	if r, ok := f.replies[lineOf(name, args)]; ok {
		return r.out, r.err
	}
	if r, ok := f.replies[name]; ok {
		return r.out, r.err
	}
	if f.fallback != nil {
		return f.fallback.out, f.fallback.err
	}
	return "", nil
}

// Calls returns a copy of every invocation so far.
func (f *FakeRunner) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Ran counts invocations of name whose arguments start with prefix.
func (f *FakeRunner) Ran(name string, prefix ...string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Name == name && len(c.Args) >= len(prefix) && slices.Equal(c.Args[:len(prefix)], prefix) {
			n++
		}
	}
	return n
}

func lineOf(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
