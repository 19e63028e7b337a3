package adapter

import (
	"context"
	"errors"
	"strings"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/internal/cast"
)

// ProviderAdapter maps a rendered PromptValue to a provider-specific request type and
// parses the provider response back to a ModelResponse. Implementations live in the
// provider subpackages; their Model types use them around the provider SDK client.
type ProviderAdapter interface {
	// Translate converts the prompt and call options into the provider request payload
	// (e.g. OpenAI chat params). Callers must type-assert the result to the provider-specific type.
	Translate(ctx context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (any, error)
	// ParseResponse converts the raw provider (unary) response into a ModelResponse.
	ParseResponse(ctx context.Context, raw any) (*promptchain.ModelResponse, error)
	// ParseStreamChunk parses a single stream chunk. Returns ErrStreamNotImplemented if not supported.
	// A nil response with nil error means the chunk carries no text (e.g. a keep-alive event).
	ParseStreamChunk(ctx context.Context, rawChunk any) (*promptchain.ModelResponse, error)
}

// Sentinel errors for adapter implementations. Callers should use errors.Is.
var (
	ErrUnsupportedRole      = errors.New("adapter: unsupported message role for this provider")
	ErrInvalidResponse      = errors.New("adapter: raw response has unexpected type")
	ErrEmptyResponse        = errors.New("adapter: response contains no content")
	ErrNilPrompt            = errors.New("adapter: prompt must not be nil")
	ErrEmptyPrompt          = errors.New("adapter: prompt has no messages")
	ErrStreamNotImplemented = errors.New("adapter: streaming not implemented for this provider")
	ErrMissingAPIKey        = errors.New("adapter: API key is required for this provider")
	ErrMissingModel         = errors.New("adapter: model name is required")
	ErrProviderCall         = errors.New("adapter: provider call failed")
)

// ModelParams holds well-known model config keys extracted from a template's ModelConfig.
// Use ExtractModelConfig to populate from map[string]any.
type ModelParams struct {
	Model       string
	Temperature *float64
	MaxTokens   *int64
	TopP        *float64
	Stop        []string
}

// ExtractModelConfig reads well-known keys from ModelConfig and returns typed ModelParams.
// Well-known keys: "model" (string), "temperature" (float64), "max_tokens" (int64),
// "top_p" (float64), "stop" ([]string).
func ExtractModelConfig(cfg map[string]any) ModelParams {
	var out ModelParams
	if cfg == nil {
		return out
	}
	if v, ok := cfg["model"].(string); ok {
		out.Model = v
	}
	if v, ok := cfg["temperature"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.Temperature = &f
		}
	}
	if v, ok := cfg["max_tokens"]; ok {
		if i, ok := cast.ToInt64(v); ok {
			out.MaxTokens = &i
		}
	}
	if v, ok := cfg["top_p"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.TopP = &f
		}
	}
	if v, ok := cfg["stop"]; ok {
		if ss, ok := cast.ToStringSlice(v); ok {
			out.Stop = ss
		}
	}
	return out
}

// CallOptionsFromConfig turns a template's ModelConfig into call options, so manifest
// settings can be passed to chain.Model or ChatModel.Generate.
func CallOptionsFromConfig(cfg map[string]any) []promptchain.CallOption {
	p := ExtractModelConfig(cfg)
	var opts []promptchain.CallOption
	if p.Model != "" {
		opts = append(opts, promptchain.WithModel(p.Model))
	}
	if p.Temperature != nil {
		opts = append(opts, promptchain.WithTemperature(*p.Temperature))
	}
	if p.MaxTokens != nil {
		opts = append(opts, promptchain.WithMaxTokens(*p.MaxTokens))
	}
	if p.TopP != nil {
		opts = append(opts, promptchain.WithTopP(*p.TopP))
	}
	if len(p.Stop) > 0 {
		opts = append(opts, promptchain.WithStop(p.Stop...))
	}
	return opts
}

// ResolveModel returns opts.Model, falling back to def. Returns ErrMissingModel if both are empty.
func ResolveModel(opts promptchain.CallOptions, def string) (string, error) {
	if opts.Model != "" {
		return opts.Model, nil
	}
	if def != "" {
		return def, nil
	}
	return "", ErrMissingModel
}

// CheckPrompt returns ErrNilPrompt or ErrEmptyPrompt for prompts that cannot be sent.
func CheckPrompt(prompt *promptchain.PromptValue) error {
	if prompt == nil {
		return ErrNilPrompt
	}
	if prompt.Len() == 0 {
		return ErrEmptyPrompt
	}
	return nil
}

// SplitSystem separates system messages from the conversation. Providers with a dedicated
// system field (Anthropic, Gemini) join the system texts with blank lines.
func SplitSystem(msgs []promptchain.ChatMessage) (system string, rest []promptchain.ChatMessage) {
	var sys []string
	for _, m := range msgs {
		if m.Role == promptchain.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}
