package embedregistry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/manifest"
)

var _ promptchain.PromptRegistry = (*Registry)(nil)

// Registry serves templates parsed from an fs.FS at construction (eager). It is read-only
// after New, so no mutex is needed.
type Registry struct {
	cache map[string]*promptchain.ChatPromptTemplate
	names []string
}

// Option configures New.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger used while loading. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New walks fsys under root, parses every .yaml/.yml manifest and returns a Registry.
// "name.yaml" is stored as the base template and "name.env.yaml" as its env variant.
// Two files resolving to the same name and env are an error.
func New(fsys fs.FS, root string, opts ...Option) (*Registry, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Registry{cache: make(map[string]*promptchain.ChatPromptTemplate)}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := path.Ext(p)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		name, env, _ := strings.Cut(strings.TrimSuffix(path.Base(p), ext), ".")
		if err := promptchain.ValidateName(name, env); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		key := name + ":" + env
		if _, dup := r.cache[key]; dup {
			return fmt.Errorf("%s: %w: duplicate template %q env %q", p, promptchain.ErrInvalidManifest, name, env)
		}
		tpl, err := manifest.ParseFS(fsys, p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		tpl.Metadata.Environment = env
		r.cache[key] = tpl
		if !slices.Contains(r.names, name) {
			r.names = append(r.names, name)
		}
		cfg.logger.Debug("prompt embedded", "name", name, "env", env, "path", p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(r.names)
	return r, nil
}

// GetTemplate returns a template by name and env. O(1) map lookup; falls back to the
// base template when no env variant exists.
func (r *Registry) GetTemplate(ctx context.Context, name, env string) (*promptchain.ChatPromptTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tpl, ok := r.cache[name+":"+env]; ok {
		return promptchain.CloneTemplate(tpl), nil
	}
	if tpl, ok := r.cache[name+":"]; ok {
		out := promptchain.CloneTemplate(tpl)
		out.Metadata.Environment = env
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", promptchain.ErrTemplateNotFound, name)
}

// List returns the sorted template names.
func (r *Registry) List(_ context.Context) ([]string, error) {
	return slices.Clone(r.names), nil
}
