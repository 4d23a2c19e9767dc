package git

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// Repo runs git against one repository.
type Repo struct {
	root      string
	worktrees string
	runner    Runner
}

// Option configures Open.
type Option func(*Repo)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(repo *Repo) { repo.runner = r }
}

// WithWorktreeRoot places worktrees under dir. Relative paths resolve
// against the repository root. The default is ".worktrees".
func WithWorktreeRoot(dir string) Option {
	return func(repo *Repo) { repo.worktrees = dir }
}

// Open checks that path is inside a git repository.
func Open(ctx context.Context, path string, opts ...Option) (*Repo, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &Repo{root: root, worktrees: ".worktrees", runner: SystemRunner{}}
	for _, opt := range opts {
		opt(r)
	}
	if !filepath.IsAbs(r.worktrees) {
		r.worktrees = filepath.Join(root, r.worktrees)
	}
	if _, err := r.git(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
	}
	return r, nil
}

func (r *Repo) Root() string { return r.root }

// WorktreeRoot is the absolute directory holding worktrees.
func (r *Repo) WorktreeRoot() string { return r.worktrees }

func (r *Repo) Runner() Runner { return r.runner }

func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	return r.git(ctx, "remote", "get-url", remote)
}

// Fetch updates remote-tracking refs. No refspecs means the remote's
// configured ones.
func (r *Repo) Fetch(ctx context.Context, remote string, refspecs ...string) error {
	_, err := r.git(ctx, append([]string{"fetch", remote}, refspecs...)...)
	return err
}

func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.git(ctx, "rev-parse", "HEAD")
}

// HasRef reports whether ref resolves to an object.
func (r *Repo) HasRef(ctx context.Context, ref string) bool {
	_, err := r.git(ctx, "rev-parse", "--verify", "--quiet", ref)
	return err == nil
}

// DiffStat counts the changes a head branch makes on top of base.
type DiffStat struct {
	Files     int
	Additions int
	Deletions int
}

func (d DiffStat) Lines() int { return d.Additions + d.Deletions }

// Diff compares head with its merge base against base.
func (r *Repo) Diff(ctx context.Context, base, head string) (DiffStat, error) {
	out, err := r.git(ctx, "diff", "--shortstat", base+"..."+head)
	if err != nil {
		return DiffStat{}, err
	}
	return parseShortstat(out), nil
}

var shortstatField = regexp.MustCompile(`(\d+) (file|insertion|deletion)`)

func parseShortstat(out string) DiffStat {
	var d DiffStat
	for _, m := range shortstatField.FindAllStringSubmatch(out, -1) {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "file":
			d.Files = n
		case "insertion":
			d.Additions = n
		default:
			d.Deletions = n
		}
	}
	return d
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	out, err := r.runner.Run(ctx, r.root, "git", args...)
	if err != nil {
		return out, &OpError{Op: args[0], Args: args[1:], Err: err}
	}
	return out, nil
}
