package pr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is where a pull request is in its life.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
)

// Provider is the code host seen by the pipeline: the review stage reads
// diff size, the notify stage merges approved tickets and comments on them.
type Provider interface {
	GetPR(ctx context.Context, id int) (*PullRequest, error)
	MergePR(ctx context.Context, id int, opts MergeOptions) error
	AddComment(ctx context.Context, id int, body string) error
}

type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

func (m MergeMethod) orDefault() MergeMethod {
	if m == "" {
		return MergeMethodMerge
	}
	return m
}

// MergeOptions tune MergePR. The commit title and message apply to merge
// and squash commits only.
type MergeOptions struct {
	Method        MergeMethod
	CommitTitle   string
	CommitMessage string
	DeleteBranch  bool
}

// PullRequest covers GitHub pull requests and GitLab merge requests.
type PullRequest struct {
	ID    int
	URL   string
	Title string
	State State
	Draft bool
	// Head and Base are branch names.
	Head, Base string

	CreatedAt time.Time
	MergedAt  *time.Time

	Commits      int
	Additions    int
	Deletions    int
	ChangedFiles int
}

// DiffLines is additions plus deletions.
func (p *PullRequest) DiffLines() int {
	return p.Additions + p.Deletions
}

// ParseNumber extracts a PR number from the forms workers report:
// "123", "#123", "!123", or a web URL ending in /pull/123 or
// /merge_requests/123.
func ParseNumber(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	ref = strings.TrimLeft(ref, "#!")
	n, err := strconv.Atoi(ref)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadReference, ref)
	}
	return n, nil
}
