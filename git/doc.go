// Package git is the slice of repository access a run needs: the remote
// URL for choosing a pull request provider, fetching ticket branches,
// throwaway worktrees for local test runs, and diff statistics.
//
// All commands go through a Runner, so tests drive a FakeRunner instead of
// a real git binary.
//
//	repo, err := git.Open(ctx, ".")
//	dir, err := repo.Checkout(ctx, "origin/feature/ticket-t-1", "t-1")
//	defer repo.Remove(ctx, dir)
package git
