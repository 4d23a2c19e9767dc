package pr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnknownProvider = errors.New("remote is not a GitHub or GitLab repository")
	ErrBadRemote       = errors.New("unrecognized git remote")
	ErrNoToken         = errors.New("no API token configured")

	ErrNotFound      = errors.New("pull request not found")
	ErrClosed        = errors.New("pull request is closed")
	ErrMergeConflict = errors.New("pull request cannot be merged cleanly")

	// ErrBadReference means a worker reported something that is neither a
	// PR number nor a PR URL.
	ErrBadReference = errors.New("unrecognized pull request reference")
)

// statusError maps a failed API call onto the sentinels above. Hosts signal
// an unmergeable request differently (GitHub 409, GitLab 406), so the
// caller names its conflict status.
func statusError(op string, resp *http.Response, conflict int, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusMethodNotAllowed:
			return fmt.Errorf("%s: %w", op, ErrClosed)
		case conflict:
			return fmt.Errorf("%s: %w", op, ErrMergeConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
