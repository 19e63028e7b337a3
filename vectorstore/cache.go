package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skosovsky/promptchain"
)

var (
	_ promptchain.Embedder = (*CachedEmbedder)(nil)
	_ Cache                = (*MemoryCache)(nil)
	_ Cache                = (*RedisCache)(nil)
)

// ErrCorruptEntry is returned when a cached vector cannot be decoded.
var ErrCorruptEntry = errors.New("vectorstore: corrupt cache entry")

// Cache stores embedding vectors by key. Get reports a miss with ok == false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// MemoryCache is an unbounded in-process Cache. Safe for concurrent use.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string][]float32
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string][]float32)}
}

// Get returns a copy of the cached vector.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return slices.Clone(v), ok, nil
}

// Set stores a copy of vec.
func (c *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = slices.Clone(vec)
	return nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// RedisCache stores vectors as little-endian float32 blobs under "{prefix}:emb:{key}".
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithRedisPrefix sets the key prefix. Default is "promptchain".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// WithRedisTTL sets the entry lifetime. Default is 7 days; 0 means no expiration.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) { c.ttl = ttl }
}

// NewRedisCache creates a Redis-backed cache.
//
//	cache := vectorstore.NewRedisCache(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, prefix: "promptchain", ttl: 7 * 24 * time.Hour}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":emb:" + k
}

// Get loads a vector; a missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vectorstore: redis get: %w", err)
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores a vector with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := c.client.Set(ctx, c.key(key), encodeVector(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("vectorstore: redis set: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptEntry, len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}

// CachedEmbedder consults a Cache before calling the wrapped Embedder. Keys are the
// SHA-256 of namespace and text, so different models must use different namespaces.
// Cache read and write failures are logged and fall through to the embedder.
type CachedEmbedder struct {
	embedder  promptchain.Embedder
	cache     Cache
	namespace string
	logger    *slog.Logger
}

// CacheOption configures a CachedEmbedder.
type CacheOption func(*CachedEmbedder)

// WithNamespace separates cache entries of different embedding models.
func WithNamespace(ns string) CacheOption {
	return func(e *CachedEmbedder) { e.namespace = ns }
}

// WithCacheLogger sets the logger for cache failures. Default is slog.Default().
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(e *CachedEmbedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewCachedEmbedder wraps embedder with cache. Panics if either is nil.
func NewCachedEmbedder(embedder promptchain.Embedder, cache Cache, opts ...CacheOption) *CachedEmbedder {
	if embedder == nil || cache == nil {
		panic("vectorstore: CachedEmbedder needs an Embedder and a Cache")
	}
	e := &CachedEmbedder{embedder: embedder, cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (e *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	vec, ok, err := e.cache.Get(ctx, e.key(text))
	if err != nil {
		e.logger.WarnContext(ctx, "embedding cache read failed", "err", err)
		return nil, false
	}
	return vec, ok
}

func (e *CachedEmbedder) store(ctx context.Context, text string, vec []float32) {
	if err := e.cache.Set(ctx, e.key(text), vec); err != nil {
		e.logger.WarnContext(ctx, "embedding cache write failed", "err", err)
	}
}

// EmbedDocuments embeds only the texts missing from the cache, in one call, and keeps
// the input order.
func (e *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if vec, ok := e.lookup(ctx, t); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrEmbedding, len(vecs), len(missing))
	}
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		e.store(ctx, missing[j], vec)
	}
	e.logger.DebugContext(ctx, "embeddings computed", "cached", len(texts)-len(missing), "computed", len(missing))
	return out, nil
}

// EmbedQuery embeds one text through the cache.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, text, vec)
	return vec, nil
}
