package promptchain

import (
	"log/slog"
	"maps"
)

// templateConfig is shared by PromptTemplate and ChatPromptTemplate constructors.
type templateConfig struct {
	partials    Values
	modelConfig map[string]any
	metadata    PromptMetadata
	schema      *SchemaDefinition
	logger      *slog.Logger
}

// TemplateOption configures a template (functional options pattern).
type TemplateOption func(*templateConfig)

// WithPartialVariables pre-binds variables at construction. Binding any of them again at
// render time fails with ErrDuplicateBinding.
func WithPartialVariables(vars Values) TemplateOption {
	return func(c *templateConfig) {
		if c.partials == nil {
			c.partials = Values{}
		}
		maps.Copy(c.partials, vars)
	}
}

// WithConfig sets model config (e.g. model, temperature, max_tokens).
func WithConfig(config map[string]any) TemplateOption {
	return func(c *templateConfig) {
		c.modelConfig = maps.Clone(config)
	}
}

// WithMetadata sets prompt metadata for observability.
func WithMetadata(meta PromptMetadata) TemplateOption {
	return func(c *templateConfig) {
		c.metadata = meta
	}
}

// WithOutputSchema attaches the schema the model's reply is expected to follow
// (a manifest response_format).
func WithOutputSchema(def *SchemaDefinition) TemplateOption {
	return func(c *templateConfig) {
		c.schema = def
	}
}

// WithLogger sets the logger used for render diagnostics. Default is slog.Default().
func WithLogger(l *slog.Logger) TemplateOption {
	return func(c *templateConfig) {
		c.logger = l
	}
}

func newTemplateConfig(opts []TemplateOption) templateConfig {
	var c templateConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}
