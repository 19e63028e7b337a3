package promptchain

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// MessageTemplate is one slot of a chat template: either a fixed role message whose
// Content may reference {variables}, or a history placeholder (Placeholder: true) whose
// Content names the variable holding the messages to splice in.
// Optional slots are skipped when their variables are unbound.
type MessageTemplate struct {
	Role        Role   `yaml:"role"`
	Content     string `yaml:"content"`
	Placeholder bool   `yaml:"-"`
	Optional    bool   `yaml:"optional"`
}

// System returns a fixed system slot.
func System(content string) MessageTemplate {
	return MessageTemplate{Role: RoleSystem, Content: content}
}

// Human returns a fixed user slot.
func Human(content string) MessageTemplate {
	return MessageTemplate{Role: RoleUser, Content: content}
}

// AI returns a fixed assistant slot.
func AI(content string) MessageTemplate {
	return MessageTemplate{Role: RoleAssistant, Content: content}
}

// Placeholder returns a history slot bound to variable. "{name}" and "name" are equivalent.
func Placeholder(variable string) MessageTemplate {
	return MessageTemplate{Content: variable, Placeholder: true}
}

// OptionalPlaceholder is a Placeholder that renders nothing when unbound.
func OptionalPlaceholder(variable string) MessageTemplate {
	return MessageTemplate{Content: variable, Placeholder: true, Optional: true}
}

// ChatPromptTemplate holds role-tagged message slots and renders them into a PromptValue.
// Use NewChatPromptTemplate to construct; options are applied via TemplateOption.
// Fields must not be mutated after construction to ensure goroutine safety.
type ChatPromptTemplate struct {
	Messages         []MessageTemplate
	PartialVariables Values
	ModelConfig      map[string]any
	Metadata         PromptMetadata
	OutputSchema     *SchemaDefinition
	logger           *slog.Logger
	parsed           []parsedSlot
	required         []string // referenced by non-optional slots, first appearance order
}

type parsedSlot struct {
	role        Role
	placeholder string // history variable; empty for fixed slots
	optional    bool
	segments    []segment
	vars        []string
}

// NewChatPromptTemplate parses every slot eagerly with defensive copies.
// Returns ErrTemplateParse if a slot has an unknown role or malformed placeholders.
func NewChatPromptTemplate(messages []MessageTemplate, opts ...TemplateOption) (*ChatPromptTemplate, error) {
	cfg := newTemplateConfig(opts)
	tpl := &ChatPromptTemplate{
		Messages:         slices.Clone(messages),
		PartialVariables: cfg.partials.Clone(),
		ModelConfig:      maps.Clone(cfg.modelConfig),
		Metadata:         cfg.metadata,
		OutputSchema:     cfg.schema,
		logger:           cfg.logger,
	}
	tpl.Metadata.Tags = slices.Clone(tpl.Metadata.Tags)
	tpl.parsed = make([]parsedSlot, 0, len(messages))
	seen := make(map[string]bool)
	addRequired := func(name string) {
		if !seen[name] {
			seen[name] = true
			tpl.required = append(tpl.required, name)
		}
	}
	for i, m := range tpl.Messages {
		if m.Placeholder {
			name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(m.Content), "{"), "}"))
			if !isIdentifier(name) {
				return nil, fmt.Errorf("%w: message %d: invalid placeholder variable %q", ErrTemplateParse, i, m.Content)
			}
			tpl.parsed = append(tpl.parsed, parsedSlot{placeholder: name, optional: m.Optional, vars: []string{name}})
			if !m.Optional {
				addRequired(name)
			}
			continue
		}
		role, ok := ParseRole(string(m.Role))
		if !ok {
			return nil, fmt.Errorf("%w: message %d: unknown role %q", ErrTemplateParse, i, m.Role)
		}
		segs, err := parseFString(m.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		vars := segmentVars(segs)
		tpl.parsed = append(tpl.parsed, parsedSlot{role: role, optional: m.Optional, segments: segs, vars: vars})
		if !m.Optional {
			for _, v := range vars {
				addRequired(v)
			}
		}
	}
	return tpl, nil
}

// CloneTemplate returns a copy of the template with cloned slice and map fields.
// Registries use this so callers cannot mutate the cached template.
func CloneTemplate(c *ChatPromptTemplate) *ChatPromptTemplate {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = slices.Clone(c.Messages)
	out.PartialVariables = maps.Clone(c.PartialVariables)
	out.ModelConfig = maps.Clone(c.ModelConfig)
	out.Metadata.Tags = slices.Clone(c.Metadata.Tags)
	return &out
}

// InputVariables returns the variables a render call must still supply.
func (c *ChatPromptTemplate) InputVariables() []string {
	return unbound(c.required, c.PartialVariables)
}

// Partial returns a new template with vals pre-bound. Binding a name that is already
// pre-bound fails with ErrDuplicateBinding.
func (c *ChatPromptTemplate) Partial(vals Values) (*ChatPromptTemplate, error) {
	merged, err := bind(c.PartialVariables, vals, c.Metadata.ID)
	if err != nil {
		return nil, err
	}
	out := CloneTemplate(c)
	out.PartialVariables = merged
	return out, nil
}

// FormatMessages renders every slot, splicing history placeholders in place.
// Unused extra bindings are ignored.
func (c *ChatPromptTemplate) FormatMessages(ctx context.Context, vals Values) ([]ChatMessage, error) {
	merged, err := bind(c.PartialVariables, vals, c.Metadata.ID)
	if err != nil {
		return nil, err
	}
	if err := checkRequired(c.required, merged, c.Metadata.ID); err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(c.parsed))
	for i, slot := range c.parsed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if slot.optional && !allBound(slot.vars, merged) {
			continue
		}
		if slot.placeholder != "" {
			history, ok := historyFrom(merged[slot.placeholder])
			if !ok {
				return nil, &VariableError{
					Variable: slot.placeholder,
					Template: c.Metadata.ID,
					Err:      fmt.Errorf("%w: message %d got %T", ErrInvalidHistory, i, merged[slot.placeholder]),
				}
			}
			out = append(out, history...)
			continue
		}
		out = append(out, ChatMessage{Role: slot.role, Content: renderSegments(slot.segments, merged)})
	}
	c.logger.DebugContext(ctx, "chat prompt rendered", "template", c.Metadata.ID, "messages", len(out))
	return out, nil
}

// Format renders the template into an immutable PromptValue.
func (c *ChatPromptTemplate) Format(ctx context.Context, vals Values) (*PromptValue, error) {
	msgs, err := c.FormatMessages(ctx, vals)
	if err != nil {
		return nil, err
	}
	return &PromptValue{messages: msgs}, nil
}

// Invoke is Format in chain-stage form.
func (c *ChatPromptTemplate) Invoke(ctx context.Context, vals Values) (*PromptValue, error) {
	return c.Format(ctx, vals)
}

// FormatStruct renders the template from a payload struct with prompt tags.
// A []ChatMessage field binds the history placeholder named by its tag.
func (c *ChatPromptTemplate) FormatStruct(ctx context.Context, payload any) (*PromptValue, error) {
	vals, err := ValuesFromStruct(payload)
	if err != nil {
		return nil, err
	}
	return c.Format(ctx, vals)
}

// StageName identifies the template in chain logs.
func (c *ChatPromptTemplate) StageName() string {
	if c.Metadata.ID != "" {
		return "chat_prompt:" + c.Metadata.ID
	}
	return "chat_prompt"
}

// bind merges render-time values over partials, rejecting names that are already pre-bound.
func bind(partials, vals Values, templateID string) (Values, error) {
	merged := partials.Clone()
	for _, name := range slices.Sorted(maps.Keys(vals)) {
		if _, ok := partials[name]; ok {
			return nil, &VariableError{Variable: name, Template: templateID, Err: ErrDuplicateBinding}
		}
		merged[name] = vals[name]
	}
	return merged, nil
}

func checkRequired(required []string, merged Values, templateID string) error {
	for _, name := range required {
		if _, ok := merged[name]; !ok {
			return &VariableError{Variable: name, Template: templateID, Err: ErrMissingVariable}
		}
	}
	return nil
}

func allBound(vars []string, merged Values) bool {
	for _, name := range vars {
		if _, ok := merged[name]; !ok {
			return false
		}
	}
	return true
}

func unbound(required []string, partials Values) []string {
	out := make([]string, 0, len(required))
	for _, name := range required {
		if _, ok := partials[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
