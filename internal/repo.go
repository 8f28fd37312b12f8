package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// RepoResolver maps a working directory to the root of the repository that
// contains it. An empty root means the directory is not inside a repository.
type RepoResolver interface {
	Resolve(ctx context.Context, dir string) (string, error)
}

// RepoResolverFunc adapts a function to RepoResolver.
type RepoResolverFunc func(ctx context.Context, dir string) (string, error)

func (f RepoResolverFunc) Resolve(ctx context.Context, dir string) (string, error) {
	return f(ctx, dir)
}

// GitRepoResolver resolves roots with `git rev-parse --show-toplevel`,
// caching answers in the collector cache.
type GitRepoResolver struct {
	runner CommandRunner
	cache  *CollectorCache
}

// NewGitRepoResolver creates a resolver. cache may be nil.
func NewGitRepoResolver(runner CommandRunner, cache *CollectorCache) *GitRepoResolver {
	return &GitRepoResolver{runner: runner, cache: cache}
}

// Resolve returns the repository root containing dir, or "" if there is none.
func (r *GitRepoResolver) Resolve(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	dir = filepath.Clean(dir)

	if root, ok := r.cache.RepoRoot(dir); ok {
		return root, nil
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		r.cache.SetRepoRoot(dir, "")
		return "", nil
	}

	out, err := r.runner.Run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		if IsTimeout(err) {
			return "", err
		}
		r.cache.SetRepoRoot(dir, "")
		return "", nil
	}

	root := strings.TrimSpace(out)
	if root != "" {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			root = ""
		}
	}
	r.cache.SetRepoRoot(dir, root)
	return root, nil
}

// PathWithin reports whether path is root or lies beneath it.
func PathWithin(path, root string) bool {
	if path == "" || root == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
