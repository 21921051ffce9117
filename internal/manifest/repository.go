package manifest

import (
	"context"

	"github.com/spiffcs/deprecator/internal/ghclient"
	"github.com/spiffcs/deprecator/internal/log"
)

// RepositorySource is the subset of the GitHub client RepositoryLocator uses.
type RepositorySource interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	Files(ctx context.Context, owner, repo, ref string) ([]ghclient.TreeEntry, bool, error)
	Blob(ctx context.Context, owner, repo, sha string) ([]byte, error)
}

// RepositoryLocator reads manifests from a repository's default branch.
type RepositoryLocator struct {
	Source     RepositorySource
	Repository string
}

// Locate implements Locator.
func (r RepositoryLocator) Locate(ctx context.Context, pattern Pattern) ([]File, error) {
	matcher, err := pattern.Compile()
	if err != nil {
		return nil, err
	}
	owner, repo, err := ghclient.SplitRepository(r.Repository)
	if err != nil {
		return nil, err
	}

	branch, err := r.Source.DefaultBranch(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	entries, truncated, err := r.Source.Files(ctx, owner, repo, branch)
	if err != nil {
		return nil, err
	}
	if truncated {
		log.Warn("repository tree was truncated; some manifests may be missed", "repository", r.Repository)
	}

	var files []File
	for _, entry := range entries {
		if !matcher.Match(entry.Path) {
			continue
		}
		content, err := r.Source.Blob(ctx, owner, repo, entry.SHA)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: entry.Path, Content: content})
	}

	log.Debug("matched repository manifests", "repository", r.Repository, "count", len(files))
	return files, nil
}
