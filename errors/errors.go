package errors

import "errors"

// Categories used as CLIError.Err. A wrapped error matches both its
// category and its cause under errors.Is.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("approval token expired")
	// ErrPermissionDenied means the token is valid but scoped elsewhere.
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotInGitRepo     = errors.New("not in a git repository")
	ErrConnectionFailed = errors.New("connection failed")
	// ErrRunUnavailable covers runs that are unresumable, busy or finished.
	ErrRunUnavailable = errors.New("run unavailable")
	ErrBadConfig      = errors.New("bad configuration")
)
