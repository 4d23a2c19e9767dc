// Package pr reads, merges and comments on pull requests. GitHubProvider
// wraps go-github and GitLabProvider wraps go-gitlab; Open picks one from
// a git remote URL, including GitHub Enterprise and self-hosted GitLab.
// MockProvider records merges and comments for tests.
//
//	provider, _ := pr.Open(remoteURL, token)
//	n, _ := pr.ParseNumber(ticket.PRReference)
//	pull, err := provider.GetPR(ctx, n)
package pr
