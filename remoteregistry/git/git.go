package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/skosovsky/promptchain/remoteregistry"
)

var (
	_ remoteregistry.Fetcher = (*Fetcher)(nil)
	_ remoteregistry.Lister  = (*Fetcher)(nil)
)

// Fetcher fetches YAML manifests from a Git repository (clone on first use, then pull).
// Call Close to remove the local clone.
type Fetcher struct {
	repoURL  string
	ref      string
	tag      bool
	dir      string
	depth    int
	token    string
	logger   *slog.Logger
	localDir string
	mu       sync.Mutex
	repo     *git.Repository
}

// NewFetcher creates a Fetcher. The repository is cloned on first use; Close removes
// the clone. It fails for an empty URL, ref or an unsafe dir.
func NewFetcher(repoURL string, opts ...Option) (*Fetcher, error) {
	if strings.TrimSpace(repoURL) == "" {
		return nil, errors.New("remoteregistry/git: repo URL must not be empty")
	}
	g := &Fetcher{
		repoURL: repoURL,
		ref:     "main",
		depth:   1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.ref == "" {
		return nil, errors.New("remoteregistry/git: branch or tag must not be empty")
	}
	if g.dir != "" && !filepath.IsLocal(g.dir) {
		return nil, fmt.Errorf("remoteregistry/git: dir %q must be a relative path inside the repository", g.dir)
	}
	return g, nil
}

// Fetch reads the manifest from the repo, trying {dir}/{name}.{env}.yaml first and
// falling back to {dir}/{name}.yaml (and the .yml variants).
func (g *Fetcher) Fetch(ctx context.Context, name, env string) ([]byte, error) {
	if err := remoteregistry.ValidateName(name, env); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureClone(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", remoteregistry.ErrFetchFailed, err)
	}
	baseDir := g.baseDir()
	for _, rel := range remoteregistry.CandidatePaths(name, env) {
		path := filepath.Clean(filepath.Join(baseDir, rel))
		relPath, relErr := filepath.Rel(baseDir, path)
		if relErr != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
			continue
		}
		data, err := os.ReadFile(path) // #nosec G304 -- path is validated via filepath.Rel to prevent path traversal
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: read %s: %w", remoteregistry.ErrFetchFailed, path, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", remoteregistry.ErrNotFound, name)
}

// ListNames returns the sorted template names in the manifest directory, environment
// variants folded into their base name. Subdirectories are not searched.
func (g *Fetcher) ListNames(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureClone(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", remoteregistry.ErrFetchFailed, err)
	}
	entries, err := os.ReadDir(g.baseDir())
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", remoteregistry.ErrFetchFailed, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	return remoteregistry.BaseNames(files), nil
}

func (g *Fetcher) baseDir() string {
	return filepath.Clean(filepath.Join(g.localDir, g.dir))
}

func (g *Fetcher) auth() *http.BasicAuth {
	if g.token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: g.token}
}

func (g *Fetcher) reference() plumbing.ReferenceName {
	if g.tag {
		return plumbing.NewTagReferenceName(g.ref)
	}
	return plumbing.NewBranchReferenceName(g.ref)
}

func (g *Fetcher) ensureClone(ctx context.Context) error {
	if g.repo != nil {
		return g.pull(ctx)
	}
	dir, err := os.MkdirTemp("", "promptchain-git-*")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	g.localDir = dir
	cloneOpts := &git.CloneOptions{
		URL:           g.repoURL,
		ReferenceName: g.reference(),
		SingleBranch:  true,
	}
	if g.depth > 0 {
		cloneOpts.Depth = g.depth
	}
	if a := g.auth(); a != nil {
		cloneOpts.Auth = a
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		_ = os.RemoveAll(dir)
		g.localDir = ""
		return fmt.Errorf("clone: %w", err)
	}
	g.logger.DebugContext(ctx, "prompt repo cloned", "url", g.repoURL, "ref", g.ref, "tag", g.tag)
	g.repo = repo
	return nil
}

// pull refreshes a tracked branch. Tags and local file:// remotes are read as cloned.
func (g *Fetcher) pull(ctx context.Context) error {
	if g.tag || strings.HasPrefix(g.repoURL, "file://") {
		return nil
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	pullOpts := &git.PullOptions{ReferenceName: g.reference(), SingleBranch: true}
	if a := g.auth(); a != nil {
		pullOpts.Auth = a
	}
	err = wt.PullContext(ctx, pullOpts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		// Keep the stale clone; the next Fetch retries the pull.
		g.logger.WarnContext(ctx, "git pull failed, using cached clone", "url", g.repoURL, "err", err)
	}
	return nil
}

// Close removes the local clone directory. Safe to call multiple times.
func (g *Fetcher) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.localDir == "" {
		return nil
	}
	dir := g.localDir
	g.localDir = ""
	g.repo = nil
	return os.RemoveAll(dir)
}
