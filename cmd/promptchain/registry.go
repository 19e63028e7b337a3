package main

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/embedregistry"
	"github.com/skosovsky/promptchain/fileregistry"
	"github.com/skosovsky/promptchain/remoteregistry"
	"github.com/skosovsky/promptchain/remoteregistry/git"
)

//go:embed prompts/*.yaml
var bundledPrompts embed.FS

// promptSource is a registry that can also enumerate its templates.
type promptSource interface {
	promptchain.PromptRegistry
	List(ctx context.Context) ([]string, error)
}

// remoteIndex is the file an HTTP prompt server lists its manifest files in.
const remoteIndex = "index.txt"

// openPrompts picks the registry: --prompts-url (git+ or .git URLs are cloned, a #fragment
// pins a tag; anything else is fetched over HTTP), then --prompts-dir, then the manifests
// bundled in the binary.
// The returned close function releases remote resources.
func openPrompts(cfg config, logger *slog.Logger) (promptSource, func() error, error) {
	noop := func() error { return nil }
	switch {
	case cfg.PromptsURL != "":
		fetcher, err := newFetcher(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		reg := remoteregistry.New(fetcher,
			remoteregistry.WithTTL(cfg.PromptsTTL),
			remoteregistry.WithLogger(logger),
		)
		return reg, reg.Close, nil
	case cfg.PromptsDir != "":
		return fileregistry.New(cfg.PromptsDir, fileregistry.WithLogger(logger)), noop, nil
	default:
		reg, err := embedregistry.New(bundledPrompts, "prompts", embedregistry.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("bundled prompts: %w", err)
		}
		return reg, noop, nil
	}
}

func newFetcher(cfg config, logger *slog.Logger) (remoteregistry.Fetcher, error) {
	u := cfg.PromptsURL
	repo, tag, pinned := strings.Cut(u, "#")
	if strings.HasPrefix(repo, "git+") || strings.HasSuffix(repo, ".git") {
		opts := []git.Option{git.WithLogger(logger)}
		if pinned {
			opts = append(opts, git.WithTag(tag))
		}
		if cfg.PromptsToken != "" {
			opts = append(opts, git.WithToken(cfg.PromptsToken))
		}
		return orNil[remoteregistry.Fetcher](git.NewFetcher(strings.TrimPrefix(repo, "git+"), opts...))
	}
	opts := []remoteregistry.HTTPOption{remoteregistry.WithIndex(remoteIndex)}
	if cfg.PromptsToken != "" {
		opts = append(opts, remoteregistry.WithAuthToken(cfg.PromptsToken))
	}
	return orNil[remoteregistry.Fetcher](remoteregistry.NewHTTPFetcher(u, opts...))
}
