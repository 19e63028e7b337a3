package promptchain

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// PromptTemplate is a single text with {name} placeholders. It renders to one user message.
type PromptTemplate struct {
	Template         string
	PartialVariables Values
	Metadata         PromptMetadata
	logger           *slog.Logger
	segments         []segment
	vars             []string
}

// NewPromptTemplate parses text eagerly. Returns ErrTemplateParse on unbalanced braces or
// invalid placeholder names.
func NewPromptTemplate(text string, opts ...TemplateOption) (*PromptTemplate, error) {
	segs, err := parseFString(text)
	if err != nil {
		return nil, err
	}
	cfg := newTemplateConfig(opts)
	p := &PromptTemplate{
		Template:         text,
		PartialVariables: cfg.partials.Clone(),
		Metadata:         cfg.metadata,
		logger:           cfg.logger,
		segments:         segs,
		vars:             segmentVars(segs),
	}
	p.Metadata.Tags = slices.Clone(p.Metadata.Tags)
	return p, nil
}

// MustPromptTemplate is like NewPromptTemplate but panics on error.
func MustPromptTemplate(text string, opts ...TemplateOption) *PromptTemplate {
	p, err := NewPromptTemplate(text, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// InputVariables returns the variables a render call must still supply.
func (p *PromptTemplate) InputVariables() []string {
	return unbound(p.vars, p.PartialVariables)
}

// Partial returns a new template with vals pre-bound.
func (p *PromptTemplate) Partial(vals Values) (*PromptTemplate, error) {
	merged, err := bind(p.PartialVariables, vals, p.Metadata.ID)
	if err != nil {
		return nil, err
	}
	out := *p
	out.PartialVariables = merged
	out.Metadata.Tags = slices.Clone(p.Metadata.Tags)
	return &out, nil
}

// Format renders the text. Unused extra bindings are ignored.
func (p *PromptTemplate) Format(ctx context.Context, vals Values) (string, error) {
	merged, err := bind(p.PartialVariables, vals, p.Metadata.ID)
	if err != nil {
		return "", err
	}
	if err := checkRequired(p.vars, merged, p.Metadata.ID); err != nil {
		return "", err
	}
	out := renderSegments(p.segments, merged)
	p.logger.DebugContext(ctx, "prompt rendered", "template", p.Metadata.ID, "bytes", len(out))
	return out, nil
}

// Invoke renders the text as a single user message.
func (p *PromptTemplate) Invoke(ctx context.Context, vals Values) (*PromptValue, error) {
	text, err := p.Format(ctx, vals)
	if err != nil {
		return nil, err
	}
	return UserPrompt(text), nil
}

// FormatStruct renders the template from a payload struct with prompt tags.
func (p *PromptTemplate) FormatStruct(ctx context.Context, payload any) (*PromptValue, error) {
	vals, err := ValuesFromStruct(payload)
	if err != nil {
		return nil, err
	}
	return p.Invoke(ctx, vals)
}

// StageName identifies the template in chain logs.
func (p *PromptTemplate) StageName() string { return "prompt" }

// AsChat converts the flat template into a one-slot chat template with the same partials.
func (p *PromptTemplate) AsChat() (*ChatPromptTemplate, error) {
	return NewChatPromptTemplate(
		[]MessageTemplate{Human(p.Template)},
		WithPartialVariables(maps.Clone(p.PartialVariables)),
		WithMetadata(p.Metadata),
		WithLogger(p.logger),
	)
}
