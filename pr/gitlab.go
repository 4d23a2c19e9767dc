package pr

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/xanzy/go-gitlab"
)

// GitLabProvider works on the merge requests of one GitLab project, on
// gitlab.com or a self-hosted instance.
type GitLabProvider struct {
	client  *gitlab.Client
	project string
}

// NewGitLabProvider authenticates with a personal or project access token.
// The project is addressed by its full path.
func NewGitLabProvider(token string, remote Remote) (*GitLabProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoToken, remote.Host)
	}
	if remote.Owner == "" || remote.Repo == "" {
		return nil, fmt.Errorf("%w: missing group or project", ErrBadRemote)
	}

	var opts []gitlab.ClientOptionFunc
	if base := remote.BaseURL(); base != "" {
		opts = append(opts, gitlab.WithBaseURL(base))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("gitlab client for %s: %w", remote.Host, err)
	}
	return &GitLabProvider{client: client, project: remote.Project()}, nil
}

// GetPR implements Provider. id is the merge request IID.
func (p *GitLabProvider) GetPR(ctx context.Context, id int) (*PullRequest, error) {
	mr, resp, err := p.client.MergeRequests.GetMergeRequest(p.project, id, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, statusError(fmt.Sprintf("get merge request !%d", id), gitlabHTTP(resp), http.StatusNotAcceptable, err)
	}
	return fromGitLab(mr), nil
}

// MergePR implements Provider. A squash merge uses the commit message for
// the squashed commit.
func (p *GitLabProvider) MergePR(ctx context.Context, id int, opts MergeOptions) error {
	accept := &gitlab.AcceptMergeRequestOptions{
		ShouldRemoveSourceBranch: gitlab.Ptr(opts.DeleteBranch),
	}
	if opts.CommitMessage != "" {
		accept.MergeCommitMessage = gitlab.Ptr(opts.CommitMessage)
	}
	if opts.Method == MergeMethodSquash {
		accept.Squash = gitlab.Ptr(true)
		if opts.CommitMessage != "" {
			accept.SquashCommitMessage = gitlab.Ptr(opts.CommitMessage)
		}
	}

	_, resp, err := p.client.MergeRequests.AcceptMergeRequest(p.project, id, accept, gitlab.WithContext(ctx))
	if err != nil {
		return statusError(fmt.Sprintf("merge merge request !%d", id), gitlabHTTP(resp), http.StatusNotAcceptable, err)
	}
	return nil
}

// AddComment implements Provider by creating a merge request note.
func (p *GitLabProvider) AddComment(ctx context.Context, id int, body string) error {
	note := &gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(body)}
	if _, resp, err := p.client.Notes.CreateMergeRequestNote(p.project, id, note, gitlab.WithContext(ctx)); err != nil {
		return statusError(fmt.Sprintf("comment on merge request !%d", id), gitlabHTTP(resp), http.StatusNotAcceptable, err)
	}
	return nil
}

func gitlabHTTP(resp *gitlab.Response) *http.Response {
	if resp == nil {
		return nil
	}
	return resp.Response
}

// fromGitLab converts a merge request. GitLab reports a changed-file count
// but no line counts without a separate diff request.
func fromGitLab(mr *gitlab.MergeRequest) *PullRequest {
	out := &PullRequest{
		ID:           mr.IID,
		URL:          mr.WebURL,
		Title:        mr.Title,
		Head:         mr.SourceBranch,
		Base:         mr.TargetBranch,
		Draft:        mr.Draft || strings.HasPrefix(mr.Title, "Draft:"),
		MergedAt:     mr.MergedAt,
		ChangedFiles: atoiOrZero(mr.ChangesCount),
	}
	if mr.CreatedAt != nil {
		out.CreatedAt = *mr.CreatedAt
	}
	switch mr.State {
	case "merged":
		out.State = StateMerged
	case "closed", "locked":
		out.State = StateClosed
	default:
		out.State = StateOpen
	}
	return out
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
