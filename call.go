package promptchain

import "slices"

// CallOptions are per-call model settings. Nil pointers mean "provider default".
type CallOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int64
	TopP        *float64
	Stop        []string

	// ResponseFormat requests provider-native structured output where supported.
	ResponseFormat *SchemaDefinition
}

// CallOption configures CallOptions (functional options pattern).
type CallOption func(*CallOptions)

// NewCallOptions applies opts in order; later options win.
func NewCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithModel selects the provider model identifier.
func WithModel(model string) CallOption {
	return func(o *CallOptions) { o.Model = model }
}

// WithTemperature sets sampling randomness.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

// WithMaxTokens caps the output length in tokens.
func WithMaxTokens(n int64) CallOption {
	return func(o *CallOptions) { o.MaxTokens = &n }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) CallOption {
	return func(o *CallOptions) { o.TopP = &p }
}

// WithStop sets stop sequences.
func WithStop(stop ...string) CallOption {
	return func(o *CallOptions) { o.Stop = slices.Clone(stop) }
}

// WithResponseFormat asks the provider to constrain output to the schema. Providers
// without native support ignore it; pair it with an output parser either way.
func WithResponseFormat(def *SchemaDefinition) CallOption {
	return func(o *CallOptions) { o.ResponseFormat = def }
}
