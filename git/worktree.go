package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Worktree is one entry of `git worktree list`.
type Worktree struct {
	Path   string
	Branch string // empty when detached
	Commit string
}

// Checkout adds a detached worktree for ref under the worktree root and
// returns its path. Detached checkouts let two runs test the same branch.
func (r *Repo) Checkout(ctx context.Context, ref, name string) (string, error) {
	dir := filepath.Join(r.worktrees, dirName(name))
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrWorktreeExists, dir)
	}
	if err := os.MkdirAll(r.worktrees, 0o755); err != nil {
		return "", err
	}
	if _, err := r.git(ctx, "worktree", "add", "--detach", dir, ref); err != nil {
		if msg := err.Error(); strings.Contains(msg, "invalid reference") || strings.Contains(msg, "not a valid reference") {
			return "", fmt.Errorf("%w: %s", ErrUnknownRef, ref)
		}
		return "", err
	}
	return dir, nil
}

// Remove deletes a worktree, discarding local modifications if needed.
func (r *Repo) Remove(ctx context.Context, dir string) error {
	if _, err := r.git(ctx, "worktree", "remove", dir); err == nil {
		return nil
	}
	_, err := r.git(ctx, "worktree", "remove", "--force", dir)
	return err
}

func (r *Repo) Worktrees(ctx context.Context) ([]Worktree, error) {
	out, err := r.git(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// Prune drops registrations whose directories are gone.
func (r *Repo) Prune(ctx context.Context) error {
	_, err := r.git(ctx, "worktree", "prune")
	return err
}

func parsePorcelain(out string) []Worktree {
	var list []Worktree
	for _, block := range strings.Split(strings.TrimSpace(out), "\n\n") {
		var wt Worktree
		for _, line := range strings.Split(block, "\n") {
			key, val, _ := strings.Cut(strings.TrimSpace(line), " ")
			switch key {
			case "worktree":
				wt.Path = val
			case "HEAD":
				wt.Commit = val
			case "branch":
				wt.Branch = strings.TrimPrefix(val, "refs/heads/")
			}
		}
		if wt.Path != "" {
			list = append(list, wt)
		}
	}
	return list
}

// dirName flattens a name into a single lowercase path element.
func dirName(name string) string {
	return slug(strings.ReplaceAll(name, "/", "-"))
}
