package git

import (
	"errors"
	"strings"
)

var (
	ErrNotRepository  = errors.New("not a git repository")
	ErrWorktreeExists = errors.New("worktree path already in use")
	ErrUnknownRef     = errors.New("unknown git reference")
)

// OpError reports a failed git invocation.
type OpError struct {
	Op   string
	Args []string
	Err  error
}

func (e *OpError) Error() string {
	return "git " + e.Op + " (" + strings.Join(e.Args, " ") + "): " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
