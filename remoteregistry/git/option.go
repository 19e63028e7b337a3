package git

import (
	"log/slog"
	"strings"
)

// Option configures Fetcher.
type Option func(*Fetcher)

// WithBranch tracks a branch: every Fetch after the first pulls it. Default is "main".
func WithBranch(branch string) Option {
	return func(g *Fetcher) {
		g.ref = strings.TrimSpace(branch)
		g.tag = false
	}
}

// WithTag pins the prompts to a release tag such as "prompts-v1.4". A tag is cloned once
// and never pulled.
func WithTag(tag string) Option {
	return func(g *Fetcher) {
		g.ref = strings.TrimSpace(tag)
		g.tag = true
	}
}

// WithDir reads manifests from a subdirectory of the repository, e.g. "prompts".
// NewFetcher rejects absolute paths and paths leaving the repository.
func WithDir(dir string) Option {
	return func(g *Fetcher) {
		g.dir = dir
	}
}

// WithDepth sets the clone depth. Default is 1; 0 clones the full history.
func WithDepth(depth int) Option {
	return func(g *Fetcher) {
		g.depth = depth
	}
}

// WithToken authenticates HTTPS remotes with a personal access token, sent as the
// password of user "x-access-token".
func WithToken(token string) Option {
	return func(g *Fetcher) {
		g.token = token
	}
}

// WithLogger sets the logger for clone and pull diagnostics. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Fetcher) {
		if l != nil {
			g.logger = l
		}
	}
}
