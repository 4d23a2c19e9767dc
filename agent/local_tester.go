package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dpetrovic89/agentic-dev-pipeline/git"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// DefaultTestCommand runs the Go test suite verbosely so individual test
// results can be counted.
const DefaultTestCommand = "go test -v -cover ./..."

// ErrNoBranch is returned when a ticket reaches testing without a branch.
var ErrNoBranch = errors.New("ticket has no branch")

// LocalTester runs the test command against a ticket branch in a throwaway
// worktree and reports the counts in tester JSON.
type LocalTester struct {
	repo    *git.Repo
	remote  string
	command string
	logger  *slog.Logger
}

// LocalTesterOption configures a LocalTester.
type LocalTesterOption func(*LocalTester)

// WithTestCommand sets the shell command run inside the worktree.
func WithTestCommand(cmd string) LocalTesterOption {
	return func(lt *LocalTester) { lt.command = cmd }
}

// WithRemote sets the remote fetched before testing. An empty remote tests
// the local branch.
func WithRemote(remote string) LocalTesterOption {
	return func(lt *LocalTester) { lt.remote = remote }
}

// WithTesterLogger sets the logger.
func WithTesterLogger(logger *slog.Logger) LocalTesterOption {
	return func(lt *LocalTester) { lt.logger = logger }
}

// NewLocalTester creates a tester for the repository.
func NewLocalTester(repo *git.Repo, opts ...LocalTesterOption) *LocalTester {
	lt := &LocalTester{
		repo:    repo,
		remote:  "origin",
		command: DefaultTestCommand,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(lt)
	}
	return lt
}

// Test implements Tester.
func (lt *LocalTester) Test(ctx context.Context, t ticket.Ticket) (string, error) {
	if t.Branch == "" {
		return "", ErrNoBranch
	}

	ref := t.Branch
	if lt.remote != "" {
		if err := lt.repo.Fetch(ctx, lt.remote, t.Branch); err != nil {
			return "", err
		}
		ref = lt.remote + "/" + t.Branch
	}

	suffix, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 6)
	if err != nil {
		return "", err
	}
	path, err := lt.repo.Checkout(ctx, ref, "test-"+t.ID+"-"+suffix)
	if err != nil {
		return "", err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := lt.repo.Remove(cleanupCtx, path); err != nil {
			lt.logger.Warn("remove test worktree", "path", path, "error", err)
		}
	}()

	out, runErr := lt.repo.Runner().Run(ctx, path, "sh", "-c", lt.command)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	report := ParseGoTestOutput(out)
	if runErr != nil && report.Failed == 0 {
		// Build or setup failure: nothing ran but the suite is not green.
		report.Failed = 1
		report.Total++
	}
	lt.logger.Info("tests finished",
		"ticket", t.ID,
		"total", report.Total,
		"failed", report.Failed,
		"coverage", report.Coverage,
	)

	b, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TestReport is the tester JSON shape.
type TestReport struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Coverage float64 `json:"coverage"`
}

var coverageRe = regexp.MustCompile(`coverage: ([0-9.]+)% of statements`)

// ParseGoTestOutput counts top-level test results in verbose go test output
// and averages the per-package statement coverage. Packages that fail to
// build count as one failure each.
func ParseGoTestOutput(out string) TestReport {
	var r TestReport
	var covSum float64
	var covN int
	pending := -1.0

	record := func(v float64) {
		covSum += v
		covN++
		pending = -1
	}

	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "--- PASS:"):
			r.Passed++
		case strings.HasPrefix(line, "--- FAIL:"):
			r.Failed++
		case strings.HasPrefix(line, "coverage:"):
			// Printed by the test binary; the package line may repeat it.
			if v, ok := coverageOf(line); ok {
				pending = v
			}
		case strings.HasPrefix(line, "ok  \t"), strings.HasPrefix(line, "FAIL\t"):
			if strings.HasSuffix(line, "[build failed]") || strings.HasSuffix(line, "[setup failed]") {
				r.Failed++
			}
			if v, ok := coverageOf(line); ok {
				record(v)
			} else if pending >= 0 {
				record(pending)
			}
		}
	}
	if pending >= 0 {
		record(pending)
	}

	r.Total = r.Passed + r.Failed
	if covN > 0 {
		r.Coverage = covSum / float64(covN)
	}
	return r
}

func coverageOf(line string) (float64, bool) {
	m := coverageRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}
