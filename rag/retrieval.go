package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/skosovsky/promptchain"
)

// DefaultK is the number of documents retrieved per question.
const DefaultK = 3

// Result is the full answer record of a retrieval chain.
type Result struct {
	Input   string
	Context []promptchain.Document
	Answer  string
}

// RetrievalChain retrieves documents for a question and answers with a StuffDocumentsChain.
type RetrievalChain struct {
	retriever promptchain.Retriever
	combine   *StuffDocumentsChain
	k         int
	inputVar  string
	values    promptchain.Values
	logger    *slog.Logger
}

// RetrievalOption configures a RetrievalChain.
type RetrievalOption func(*RetrievalChain)

// WithK sets how many documents to retrieve. Values <= 0 keep DefaultK.
func WithK(k int) RetrievalOption {
	return func(r *RetrievalChain) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithInputVariable names the prompt variable receiving the question. Default "input".
func WithInputVariable(name string) RetrievalOption {
	return func(r *RetrievalChain) { r.inputVar = name }
}

// WithValues binds extra prompt variables on every call.
func WithValues(vals promptchain.Values) RetrievalOption {
	return func(r *RetrievalChain) { r.values = maps.Clone(vals) }
}

// WithLogger sets the logger for retrieval diagnostics. Default is slog.Default().
func WithLogger(l *slog.Logger) RetrievalOption {
	return func(r *RetrievalChain) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetrievalChain combines a retriever with a stuff-documents chain.
func NewRetrievalChain(retriever promptchain.Retriever, combine *StuffDocumentsChain, opts ...RetrievalOption) (*RetrievalChain, error) {
	if retriever == nil || combine == nil {
		return nil, errors.New("rag: retriever and combine chain are required")
	}
	r := &RetrievalChain{
		retriever: retriever,
		combine:   combine,
		k:         DefaultK,
		inputVar:  DefaultInputVariable,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Invoke answers question from the k most relevant documents.
func (r *RetrievalChain) Invoke(ctx context.Context, question string) (*Result, error) {
	docs, err := r.retriever.Retrieve(ctx, question, r.k)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	r.logger.DebugContext(ctx, "documents retrieved", "k", r.k, "found", len(docs))
	vals := maps.Clone(r.values)
	if vals == nil {
		vals = make(promptchain.Values, 1)
	}
	vals[r.inputVar] = question
	answer, err := r.combine.Invoke(ctx, StuffInput{Documents: docs, Values: vals})
	if err != nil {
		return nil, err
	}
	return &Result{Input: question, Context: docs, Answer: answer}, nil
}

// StageName implements chain.Named.
func (*RetrievalChain) StageName() string { return "retrieval" }
