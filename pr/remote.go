package pr

import (
	"fmt"
	"slices"
	"strings"
)

// Platform identifies a code host.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// Remote is a parsed git remote URL.
type Remote struct {
	Platform Platform
	// Scheme is "https" unless the remote was an explicit http:// URL.
	Scheme string
	Host   string
	// Owner is the user, organization or (for GitLab) the full group path.
	Owner string
	Repo  string
}

// Project returns "owner/repo".
func (r Remote) Project() string {
	return r.Owner + "/" + r.Repo
}

// BaseURL returns the API root for self-hosted instances and "" for
// github.com and gitlab.com, where the client defaults apply.
func (r Remote) BaseURL() string {
	if r.Host == "github.com" || r.Host == "gitlab.com" {
		return ""
	}
	return r.Scheme + "://" + r.Host
}

// ParseRemote understands the remote forms git accepts for hosted
// repositories:
//
//	git@github.com:acme/service.git
//	ssh://git@gitlab.example.com/group/sub/service.git
//	https://github.com/acme/service
//
// GitLab group paths may be nested; GitHub repositories are always
// owner/repo.
func ParseRemote(remoteURL string) (Remote, error) {
	raw := strings.TrimSpace(remoteURL)
	r := Remote{Scheme: "https"}

	var path string
	switch {
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "ssh://"):
		scheme, rest, _ := strings.Cut(raw, "://")
		if scheme == "http" {
			r.Scheme = "http"
		}
		r.Host, path, _ = strings.Cut(rest, "/")
		if _, host, ok := strings.Cut(r.Host, "@"); ok {
			r.Host = host
		}
		if scheme == "ssh" {
			r.Host, _, _ = strings.Cut(r.Host, ":")
		}
	case strings.Contains(raw, "@") && strings.Contains(raw, ":"):
		userHost, p, _ := strings.Cut(raw, ":")
		_, r.Host, _ = strings.Cut(userHost, "@")
		path = p
	default:
		return Remote{}, fmt.Errorf("%w: %q", ErrBadRemote, remoteURL)
	}

	r.Host = strings.ToLower(r.Host)
	switch {
	case strings.Contains(r.Host, "github"):
		r.Platform = PlatformGitHub
	case strings.Contains(r.Host, "gitlab"):
		r.Platform = PlatformGitLab
	default:
		return Remote{}, fmt.Errorf("%w: %s", ErrUnknownProvider, r.Host)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	segments := strings.Split(path, "/")
	if len(segments) < 2 || slices.Contains(segments, "") {
		return Remote{}, fmt.Errorf("%w: %q", ErrBadRemote, remoteURL)
	}
	if r.Platform == PlatformGitHub && len(segments) != 2 {
		return Remote{}, fmt.Errorf("%w: %q is not owner/repo", ErrBadRemote, path)
	}
	r.Owner = strings.Join(segments[:len(segments)-1], "/")
	r.Repo = segments[len(segments)-1]
	return r, nil
}

// Open returns the provider for the repository behind remoteURL.
//
//	remoteURL, _ := repo.RemoteURL(ctx, "origin")
//	provider, err := pr.Open(remoteURL, settings.GitToken)
func Open(remoteURL, token string) (Provider, error) {
	remote, err := ParseRemote(remoteURL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoToken, remote.Host)
	}
	switch remote.Platform {
	case PlatformGitHub:
		return NewGitHubProvider(token, remote)
	default:
		return NewGitLabProvider(token, remote)
	}
}
