package fileregistry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/manifest"
)

// Ensures Registry implements promptchain.PromptRegistry.
var _ promptchain.PromptRegistry = (*Registry)(nil)

var extensions = []string{".yaml", ".yml"}

// Registry loads prompt templates from the filesystem (lazy, cached).
// Resolves name+env to {dir}/{name}.{env}.yaml with fallback to {dir}/{name}.yaml.
type Registry struct {
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
	cache  map[string]*promptchain.ChatPromptTemplate
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for load diagnostics. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a Registry that reads YAML manifests from dir.
func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:    dir,
		logger: slog.Default(),
		cache:  make(map[string]*promptchain.ChatPromptTemplate),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetTemplate returns a template by name and env. Lazy-loads and caches.
// File resolution: {dir}/{name}.{env}.yaml or .yml, fallback {dir}/{name}.yaml or .yml.
func (r *Registry) GetTemplate(ctx context.Context, name, env string) (*promptchain.ChatPromptTemplate, error) {
	if err := promptchain.ValidateName(name, env); err != nil {
		return nil, err
	}
	key := name + ":" + env
	r.mu.RLock()
	tpl, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return promptchain.CloneTemplate(tpl), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok = r.cache[key]; ok {
		return promptchain.CloneTemplate(tpl), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, path := range r.candidates(name, env) {
		tpl, err := manifest.ParseFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fileregistry: %s: %w", path, err)
		}
		tpl.Metadata.Environment = env
		r.cache[key] = tpl
		r.logger.DebugContext(ctx, "prompt loaded", "name", name, "env", env, "path", path)
		return promptchain.CloneTemplate(tpl), nil
	}
	return nil, fmt.Errorf("%w: %q", promptchain.ErrTemplateNotFound, name)
}

// candidates lists the files tried for name and env, most specific first.
func (r *Registry) candidates(name, env string) []string {
	var out []string
	if env != "" {
		for _, ext := range extensions {
			out = append(out, filepath.Join(r.dir, name+"."+env+ext))
		}
	}
	for _, ext := range extensions {
		out = append(out, filepath.Join(r.dir, name+ext))
	}
	return out
}

// List returns the sorted base template names found in the directory. Environment
// variants ({name}.{env}.yaml) are folded into their base name.
func (r *Registry) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("fileregistry: list %s: %w", r.dir, err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(extensions, ext) {
			continue
		}
		base, _, _ := strings.Cut(strings.TrimSuffix(e.Name(), ext), ".")
		if promptchain.ValidateName(base, "") == nil {
			seen[base] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// Reload clears the cache (for hot-reload in development).
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*promptchain.ChatPromptTemplate)
}
