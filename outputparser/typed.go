package outputparser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skosovsky/promptchain"
)

// TypedParser validates a record against the schema reflected from T and decodes it into T.
type TypedParser[T any] struct {
	inner *StructuredParser
}

// Typed returns a parser producing T. The schema comes from SchemaFor[T].
func Typed[T any](opts ...StructuredOption) (*TypedParser[T], error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, err
	}
	return &TypedParser[T]{inner: Structured(schema, opts...)}, nil
}

// Parse validates the record, then decodes it into T.
func (p *TypedParser[T]) Parse(ctx context.Context, text string) (T, error) {
	var out T
	record, err := p.inner.Parse(ctx, text)
	if err != nil {
		return out, err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return out, fmt.Errorf("%w: %w", promptchain.ErrOutputParse, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", promptchain.ErrOutputParse, err)
	}
	return out, nil
}

// Invoke parses resp.Text.
func (p *TypedParser[T]) Invoke(ctx context.Context, resp *promptchain.ModelResponse) (T, error) {
	return p.Parse(ctx, responseText(resp))
}

// FormatInstructions embeds the reflected JSON Schema.
func (p *TypedParser[T]) FormatInstructions() string { return p.inner.FormatInstructions() }

// Schema returns the reflected schema.
func (p *TypedParser[T]) Schema() *Schema { return p.inner.schema }

// StageName implements chain.Named.
func (p *TypedParser[T]) StageName() string { return "typed_parser:" + p.inner.schema.name }
