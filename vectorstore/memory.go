package vectorstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/skosovsky/promptchain"
)

var (
	_ promptchain.Retriever = (*MemoryStore)(nil)
	_ promptchain.Retriever = (*Retriever)(nil)
)

// DefaultK is the number of documents returned when k <= 0.
const DefaultK = 4

var (
	// ErrDimensionMismatch is returned when an embedding has a different length than the stored ones.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")
	// ErrEmbedding is returned when the embedder returns the wrong number of vectors.
	ErrEmbedding = errors.New("vectorstore: embedder returned unexpected result")
)

// ScoredDocument is a search hit with its cosine similarity to the query.
type ScoredDocument struct {
	Document promptchain.Document
	Score    float64
}

type entry struct {
	doc  promptchain.Document
	vec  []float32
	norm float64
}

// MemoryStore is an in-memory vector index. Safe for concurrent use.
type MemoryStore struct {
	embedder promptchain.Embedder
	logger   *slog.Logger
	mu       sync.RWMutex
	entries  []entry
	dim      int
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithLogger sets the logger for indexing diagnostics. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewMemoryStore creates an empty store. Panics if embedder is nil.
func NewMemoryStore(embedder promptchain.Embedder, opts ...Option) *MemoryStore {
	if embedder == nil {
		panic("vectorstore: Embedder must not be nil")
	}
	s := &MemoryStore{embedder: embedder, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromDocuments creates a store and indexes docs.
func FromDocuments(ctx context.Context, docs []promptchain.Document, embedder promptchain.Embedder, opts ...Option) (*MemoryStore, error) {
	s := NewMemoryStore(embedder, opts...)
	if err := s.AddDocuments(ctx, docs); err != nil {
		return nil, err
	}
	return s, nil
}

// AddDocuments embeds docs in one batch and indexes them. Nothing is added on error.
func (s *MemoryStore) AddDocuments(ctx context.Context, docs []promptchain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("vectorstore: embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("%w: %d vectors for %d documents", ErrEmbedding, len(vecs), len(docs))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dim
	added := make([]entry, 0, len(docs))
	for i, v := range vecs {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
		}
		added = append(added, entry{doc: docs[i].Clone(), vec: slices.Clone(v), norm: norm(v)})
	}
	s.dim = dim
	s.entries = append(s.entries, added...)
	s.logger.DebugContext(ctx, "documents indexed", "added", len(added), "total", len(s.entries))
	return nil
}

// Len returns the number of indexed documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SimilaritySearchWithScore returns up to k documents ranked by cosine similarity, best
// first. Ties keep insertion order.
func (s *MemoryStore) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		k = DefaultK
	}
	qv, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(qv) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(qv), s.dim)
	}
	qn := norm(qv)
	hits := make([]ScoredDocument, len(s.entries))
	for i, e := range s.entries {
		hits[i] = ScoredDocument{Document: e.doc, Score: cosine(qv, qn, e.vec, e.norm)}
	}
	slices.SortStableFunc(hits, func(a, b ScoredDocument) int { return cmp.Compare(b.Score, a.Score) })
	hits = hits[:min(k, len(hits))]
	for i := range hits {
		hits[i].Document = hits[i].Document.Clone()
	}
	return hits, nil
}

// SimilaritySearch is SimilaritySearchWithScore without the scores.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, query string, k int) ([]promptchain.Document, error) {
	hits, err := s.SimilaritySearchWithScore(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]promptchain.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	return docs, nil
}

// Retrieve implements promptchain.Retriever.
func (s *MemoryStore) Retrieve(ctx context.Context, query string, k int) ([]promptchain.Document, error) {
	return s.SimilaritySearch(ctx, query, k)
}

// AsRetriever fixes k, for use as a chain stage.
func (s *MemoryStore) AsRetriever(k int) *Retriever {
	return &Retriever{store: s, k: k}
}

// Retriever is a MemoryStore bound to a result count.
type Retriever struct {
	store *MemoryStore
	k     int
}

// Invoke returns the k best documents for query.
func (r *Retriever) Invoke(ctx context.Context, query string) ([]promptchain.Document, error) {
	return r.store.SimilaritySearch(ctx, query, r.k)
}

// Retrieve implements promptchain.Retriever; k <= 0 uses the bound k.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]promptchain.Document, error) {
	if k <= 0 {
		k = r.k
	}
	return r.store.SimilaritySearch(ctx, query, k)
}

// StageName names the retriever in chain logs.
func (*Retriever) StageName() string { return "retriever" }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine is zero when either vector is all zeros.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
