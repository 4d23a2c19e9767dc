package pr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubProvider works on the pull requests of one GitHub repository,
// including GitHub Enterprise hosts.
type GitHubProvider struct {
	client *github.Client
	owner  string
	repo   string
	logger *slog.Logger
}

// NewGitHubProvider authenticates with a personal access or app token.
func NewGitHubProvider(token string, remote Remote) (*GitHubProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoToken, remote.Host)
	}
	if remote.Owner == "" || remote.Repo == "" {
		return nil, fmt.Errorf("%w: missing owner or repository", ErrBadRemote)
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client := github.NewClient(httpClient)
	if base := remote.BaseURL(); base != "" {
		var err error
		client, err = client.WithEnterpriseURLs(base+"/api/v3/", base+"/api/uploads/")
		if err != nil {
			return nil, fmt.Errorf("github enterprise client for %s: %w", remote.Host, err)
		}
	}
	return newGitHubProvider(client, remote.Owner, remote.Repo), nil
}

func newGitHubProvider(client *github.Client, owner, repo string) *GitHubProvider {
	return &GitHubProvider{client: client, owner: owner, repo: repo, logger: slog.Default()}
}

// GetPR implements Provider.
func (p *GitHubProvider) GetPR(ctx context.Context, id int) (*PullRequest, error) {
	pull, resp, err := p.client.PullRequests.Get(ctx, p.owner, p.repo, id)
	if err != nil {
		return nil, statusError(fmt.Sprintf("get pull request #%d", id), githubHTTP(resp), http.StatusConflict, err)
	}
	return fromGitHub(pull), nil
}

// MergePR implements Provider. Branch deletion is best effort and happens
// only after a successful merge.
func (p *GitHubProvider) MergePR(ctx context.Context, id int, opts MergeOptions) error {
	var head string
	if opts.DeleteBranch {
		if pull, err := p.GetPR(ctx, id); err == nil {
			head = pull.Head
		}
	}

	_, resp, err := p.client.PullRequests.Merge(ctx, p.owner, p.repo, id, opts.CommitMessage,
		&github.PullRequestOptions{
			CommitTitle: opts.CommitTitle,
			MergeMethod: string(opts.Method.orDefault()),
		})
	if err != nil {
		return statusError(fmt.Sprintf("merge pull request #%d", id), githubHTTP(resp), http.StatusConflict, err)
	}

	if head != "" {
		if _, err := p.client.Git.DeleteRef(ctx, p.owner, p.repo, "heads/"+head); err != nil {
			p.logger.Warn("branch not deleted after merge", "pr", id, "branch", head, "error", err)
		}
	}
	return nil
}

// AddComment implements Provider. Pull request comments are issue comments
// in the GitHub API.
func (p *GitHubProvider) AddComment(ctx context.Context, id int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, resp, err := p.client.Issues.CreateComment(ctx, p.owner, p.repo, id, comment); err != nil {
		return statusError(fmt.Sprintf("comment on pull request #%d", id), githubHTTP(resp), http.StatusConflict, err)
	}
	return nil
}

func githubHTTP(resp *github.Response) *http.Response {
	if resp == nil {
		return nil
	}
	return resp.Response
}

func fromGitHub(pull *github.PullRequest) *PullRequest {
	out := &PullRequest{
		ID:           pull.GetNumber(),
		URL:          pull.GetHTMLURL(),
		Title:        pull.GetTitle(),
		Draft:        pull.GetDraft(),
		Head:         pull.GetHead().GetRef(),
		Base:         pull.GetBase().GetRef(),
		CreatedAt:    pull.GetCreatedAt().Time,
		Commits:      pull.GetCommits(),
		Additions:    pull.GetAdditions(),
		Deletions:    pull.GetDeletions(),
		ChangedFiles: pull.GetChangedFiles(),
		State:        StateOpen,
	}
	if pull.GetState() == "closed" {
		out.State = StateClosed
	}
	if pull.GetMerged() || pull.MergedAt != nil {
		out.State = StateMerged
	}
	if pull.MergedAt != nil {
		merged := pull.MergedAt.Time
		out.MergedAt = &merged
	}
	return out
}
