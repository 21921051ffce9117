// Package ghclient provides the GitHub API access deprecator needs: reading
// manifests out of a repository tree, checking rate limits, and acting as a
// GitHub App.
package ghclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/spiffcs/deprecator/internal/log"
)

// DefaultEndpoint is the public GitHub API root.
const DefaultEndpoint = "https://api.github.com"

type options struct {
	endpoint string
}

// Option configures clients created by this package.
type Option func(*options)

// WithEndpoint sets the API root, for GitHub Enterprise or tests.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newGitHubClient returns a go-github client authenticating with token as a
// bearer credential, rooted at endpoint.
func newGitHubClient(ctx context.Context, token, endpoint string, state *RateLimitState) (*gh.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Transport = &rateLimitTransport{
		base:  tc.Transport,
		state: state,
	}

	client := gh.NewClient(tc)
	base, err := url.Parse(strings.TrimSuffix(endpoint, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub endpoint %q: %w", endpoint, err)
	}
	client.BaseURL = base
	return client, nil
}

// Client wraps the GitHub API client
type Client struct {
	client *gh.Client
	limits *RateLimitState
}

// NewClient creates a new GitHub client using a personal access or
// installation token. An empty token falls back to GITHUB_TOKEN.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("GitHub token not provided. Set the GITHUB_TOKEN environment variable")
	}

	o := buildOptions(opts)
	limits := &RateLimitState{}
	client, err := newGitHubClient(ctx, token, o.endpoint, limits)
	if err != nil {
		return nil, err
	}

	return &Client{client: client, limits: limits}, nil
}

// RateLimits fetches the current GitHub API rate limit status.
func (c *Client) RateLimits(ctx context.Context) (*gh.RateLimits, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limits: %w", err)
	}
	return limits, nil
}

// RateLimitState returns the quota observed on this client's responses.
func (c *Client) RateLimitState() *RateLimitState {
	return c.limits
}

// TreeEntry is one file in a repository tree.
type TreeEntry struct {
	Path string
	SHA  string
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	branch := r.GetDefaultBranch()
	if branch == "" {
		return "", fmt.Errorf("repository %s/%s has no default branch", owner, repo)
	}
	return branch, nil
}

// Files lists every blob reachable from ref. The listing may be incomplete
// for very large repositories; truncated reports that.
func (c *Client) Files(ctx context.Context, owner, repo, ref string) (files []TreeEntry, truncated bool, err error) {
	tree, _, err := c.client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get tree %s for %s/%s: %w", ref, owner, repo, err)
	}

	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		files = append(files, TreeEntry{Path: entry.GetPath(), SHA: entry.GetSHA()})
	}
	log.Debug("listed repository tree", "repository", owner+"/"+repo, "ref", ref, "files", len(files))
	return files, tree.GetTruncated(), nil
}

// Blob returns the decoded content of a blob.
func (c *Client) Blob(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	blob, _, err := c.client.Git.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s from %s/%s: %w", sha, owner, repo, err)
	}

	content := blob.GetContent()
	if blob.GetEncoding() != "base64" {
		return []byte(content), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob %s: %w", sha, err)
	}
	return decoded, nil
}

// SplitRepository splits "owner/name" into its parts.
func SplitRepository(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.Trim(fullName, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must be in owner/name form, got %q", fullName)
	}
	return owner, repo, nil
}
