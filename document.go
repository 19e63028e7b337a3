package promptchain

import (
	"context"
	"maps"
)

// Document is a piece of text with metadata (source URL, chunk index, ...).
type Document struct {
	PageContent string
	Metadata    map[string]any
}

// Clone returns a copy with its own metadata map.
func (d Document) Clone() Document {
	return Document{PageContent: d.PageContent, Metadata: maps.Clone(d.Metadata)}
}

// Embedder turns text into dense vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the k passages most relevant to query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}
