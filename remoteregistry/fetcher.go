package remoteregistry

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/skosovsky/promptchain"
)

// Fetcher fetches raw YAML manifest bytes by template name and environment.
// HTTPFetcher and git.Fetcher are the bundled implementations.
//
// Return ErrNotFound when no manifest exists; Registry translates it to
// promptchain.ErrTemplateNotFound. Wrap other errors in ErrFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, name, env string) ([]byte, error)
}

// Lister is optional. When implemented by a Fetcher, Registry.List uses it.
type Lister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// ValidateName checks that name and env are safe for URLs, paths and cache keys.
// Delegates to promptchain.ValidateName so all registries share the same rules.
func ValidateName(name, env string) error {
	return promptchain.ValidateName(name, env)
}

// CandidatePaths returns manifest filename candidates in resolution order:
// name.env.yaml, name.env.yml (when env is set), then name.yaml, name.yml.
// Call ValidateName before using the result with filesystem paths.
func CandidatePaths(name, env string) []string {
	var out []string
	if env != "" {
		out = append(out, name+"."+env+".yaml", name+"."+env+".yml")
	}
	return append(out, name+".yaml", name+".yml")
}

// ManifestName splits a manifest file name into template name and environment:
// "support.yaml" is ("support", "") and "support.production.yml" is ("support", "production").
// ok is false for other extensions and for names ValidateName rejects.
func ManifestName(file string) (name, env string, ok bool) {
	ext := path.Ext(file)
	if ext != ".yaml" && ext != ".yml" {
		return "", "", false
	}
	name, env, _ = strings.Cut(strings.TrimSuffix(file, ext), ".")
	if ValidateName(name, env) != nil {
		return "", "", false
	}
	return name, env, true
}

// BaseNames returns the sorted distinct template names among manifest files.
// Environment variants fold into their base name; other files are skipped.
func BaseNames(files []string) []string {
	var names []string
	for _, f := range files {
		if name, _, ok := ManifestName(f); ok && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
