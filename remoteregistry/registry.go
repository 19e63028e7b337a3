package remoteregistry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/manifest"
)

const defaultTTL = 5 * time.Minute

// detachCancel returns a context that is not cancelled when parent is cancelled,
// but still respects parent's deadline so fetches (e.g. git clone) do not hang.
// The caller should call the returned cancel when done to release the deadline timer.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

// Ensures Registry implements promptchain.PromptRegistry.
var _ promptchain.PromptRegistry = (*Registry)(nil)

type cacheEntry struct {
	tpl       *promptchain.ChatPromptTemplate
	expiresAt time.Time
}

func (r *Registry) valid(ent *cacheEntry, now time.Time) bool {
	return r.ttl <= 0 || now.Before(ent.expiresAt)
}

// Registry loads prompt templates via a Fetcher and caches them with TTL.
// GetTemplate returns a cloned template.
type Registry struct {
	fetcher Fetcher
	ttl     time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*cacheEntry
	sf      singleflight.Group
}

// New creates a Registry that uses the given Fetcher. Panics if fetcher is nil.
func New(fetcher Fetcher, opts ...Option) *Registry {
	if fetcher == nil {
		panic("remoteregistry: Fetcher must not be nil")
	}
	r := &Registry{
		fetcher: fetcher,
		ttl:     defaultTTL,
		logger:  slog.Default(),
		cache:   make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) cached(key string) (*promptchain.ChatPromptTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.cache[key]
	if !ok || !r.valid(ent, time.Now()) {
		return nil, false
	}
	return promptchain.CloneTemplate(ent.tpl), true
}

// GetTemplate returns a template by name and env. Uses the TTL cache; on miss or expiry
// it fetches through the Fetcher. Concurrent misses for the same key share one fetch,
// which is not cancelled when a single caller gives up.
func (r *Registry) GetTemplate(ctx context.Context, name, env string) (*promptchain.ChatPromptTemplate, error) {
	if err := ValidateName(name, env); err != nil {
		return nil, err
	}
	key := name + ":" + env
	if tpl, ok := r.cached(key); ok {
		return tpl, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, shared := r.sf.Do(key, func() (any, error) {
		fetchCtx, cancel := detachCancel(ctx)
		defer cancel()
		data, err := r.fetcher.Fetch(fetchCtx, name, env)
		if err != nil {
			return nil, err
		}
		tpl, err := manifest.ParseBytes(data)
		if err != nil {
			return nil, err
		}
		tpl.Metadata.Environment = env
		expiresAt := time.Time{}
		if r.ttl > 0 {
			expiresAt = time.Now().Add(r.ttl)
		}
		r.mu.Lock()
		r.cache[key] = &cacheEntry{tpl: tpl, expiresAt: expiresAt}
		r.mu.Unlock()
		return tpl, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %q: %w", promptchain.ErrTemplateNotFound, name, err)
		}
		r.logger.WarnContext(ctx, "prompt fetch failed", "name", name, "env", env, "err", err)
		return nil, err
	}
	r.logger.DebugContext(ctx, "prompt fetched", "name", name, "env", env, "shared", shared)
	tpl, _ := v.(*promptchain.ChatPromptTemplate)
	return promptchain.CloneTemplate(tpl), nil
}

// List returns template names from the Fetcher if it implements Lister; otherwise nil, nil.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lister, ok := r.fetcher.(Lister); ok {
		return lister.ListNames(ctx)
	}
	return nil, nil
}

// Evict removes every cached environment of one template. Safe for concurrent use.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if n, _, _ := strings.Cut(key, ":"); n == name {
			delete(r.cache, key)
		}
	}
}

// EvictAll clears the entire cache. Safe for concurrent use.
func (r *Registry) EvictAll() {
	r.mu.Lock()
	r.cache = make(map[string]*cacheEntry)
	r.mu.Unlock()
}

// Close calls Close on the underlying Fetcher if it implements the interface
// (git.Fetcher removes its local clone).
func (r *Registry) Close() error {
	if c, ok := r.fetcher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
