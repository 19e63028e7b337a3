package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
	"github.com/skosovsky/promptchain/outputparser"
)

// Default variable names, matching the usual "{context}" / "{input}" prompt.
const (
	DefaultContextVariable = "context"
	DefaultInputVariable   = "input"
	DefaultSeparator       = "\n\n"
)

// ErrPromptVariables is returned when the prompt does not reference the context variable.
var ErrPromptVariables = errors.New("rag: prompt does not use the context variable")

// Prompt is any template stage: *promptchain.PromptTemplate and *promptchain.ChatPromptTemplate qualify.
type Prompt = chain.Runnable[promptchain.Values, *promptchain.PromptValue]

// StuffInput is what StuffDocumentsChain consumes: the documents plus the other prompt values.
type StuffInput struct {
	Documents []promptchain.Document
	Values    promptchain.Values
}

// StuffDocumentsChain formats every document, joins them and binds the result to the
// context variable. Immutable after construction.
type StuffDocumentsChain struct {
	prompt     Prompt
	model      *chain.ModelStage
	pipeline   *chain.Chain[promptchain.Values, string]
	contextVar string
	separator  string
	format     func(promptchain.Document) string
}

// StuffOption configures a StuffDocumentsChain.
type StuffOption func(*stuffConfig)

type stuffConfig struct {
	contextVar string
	separator  string
	format     func(promptchain.Document) string
	callOpts   []promptchain.CallOption
	chainOpts  []chain.Option
}

// WithContextVariable names the prompt variable receiving the documents. Default "context".
func WithContextVariable(name string) StuffOption {
	return func(c *stuffConfig) { c.contextVar = name }
}

// WithDocumentSeparator sets the text between documents. Default is a blank line.
func WithDocumentSeparator(sep string) StuffOption {
	return func(c *stuffConfig) { c.separator = sep }
}

// WithDocumentFormatter renders one document. Default is its PageContent.
func WithDocumentFormatter(fn func(promptchain.Document) string) StuffOption {
	return func(c *stuffConfig) {
		if fn != nil {
			c.format = fn
		}
	}
}

// WithCallOptions sets model call options for every invocation.
func WithCallOptions(opts ...promptchain.CallOption) StuffOption {
	return func(c *stuffConfig) { c.callOpts = append(c.callOpts, opts...) }
}

// WithChainOptions passes options (stage hooks, logger) to the underlying sequence.
func WithChainOptions(opts ...chain.Option) StuffOption {
	return func(c *stuffConfig) { c.chainOpts = append(c.chainOpts, opts...) }
}

// NewStuffDocumentsChain builds prompt | model | string parser. When prompt reports its
// InputVariables, the context variable must be among them.
func NewStuffDocumentsChain(prompt Prompt, model promptchain.ChatModel, opts ...StuffOption) (*StuffDocumentsChain, error) {
	if prompt == nil || model == nil {
		return nil, errors.New("rag: prompt and model are required")
	}
	cfg := stuffConfig{
		contextVar: DefaultContextVariable,
		separator:  DefaultSeparator,
		format:     func(d promptchain.Document) string { return d.PageContent },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if v, ok := prompt.(interface{ InputVariables() []string }); ok {
		if !slices.Contains(v.InputVariables(), cfg.contextVar) {
			return nil, fmt.Errorf("%w: %q", ErrPromptVariables, cfg.contextVar)
		}
	}
	ms := chain.Model(model, cfg.callOpts...)
	return &StuffDocumentsChain{
		prompt:     prompt,
		model:      ms,
		pipeline:   chain.Pipe3(prompt, ms, outputparser.String()).With(cfg.chainOpts...),
		contextVar: cfg.contextVar,
		separator:  cfg.separator,
		format:     cfg.format,
	}, nil
}

// Stuff joins the formatted documents with the separator.
func (s *StuffDocumentsChain) Stuff(docs []promptchain.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, s.format(d))
	}
	return strings.Join(parts, s.separator)
}

func (s *StuffDocumentsChain) values(in StuffInput) promptchain.Values {
	vals := maps.Clone(in.Values)
	if vals == nil {
		vals = make(promptchain.Values, 1)
	}
	vals[s.contextVar] = s.Stuff(in.Documents)
	return vals
}

// Invoke renders the prompt with the stuffed documents and returns the trimmed answer.
// The context variable in in.Values is overwritten.
func (s *StuffDocumentsChain) Invoke(ctx context.Context, in StuffInput) (string, error) {
	return s.pipeline.Invoke(ctx, s.values(in))
}

// Stream is Invoke with the answer yielded as the model produces it.
func (s *StuffDocumentsChain) Stream(ctx context.Context, in StuffInput) iter.Seq2[string, error] {
	return chain.Stream(ctx, s.prompt, s.model, outputparser.String(), s.values(in))
}

// StageName implements chain.Named.
func (*StuffDocumentsChain) StageName() string { return "stuff_documents" }
