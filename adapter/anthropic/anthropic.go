package anthropic

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"
)

const defaultMaxTokens int64 = 1024

// DefaultModel is used when neither the adapter nor the call options name a model.
const DefaultModel = anthropic.ModelClaudeSonnet4_5_20250929

// Adapter implements adapter.ProviderAdapter for the Anthropic Messages API.
// Translate returns *anthropic.MessageNewParams; ParseResponse expects *anthropic.Message
// and ParseStreamChunk expects *anthropic.MessageStreamEventUnion.
type Adapter struct {
	defaultModel string
}

// Option configures an Adapter (e.g. WithModel).
type Option func(*Adapter)

// WithModel sets the default model used when the call options do not name one.
func WithModel(m string) Option {
	return func(a *Adapter) { a.defaultModel = m }
}

// New returns an Adapter with a default model. Options can override the default model.
func New(opts ...Option) *Adapter {
	a := &Adapter{defaultModel: string(DefaultModel)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Translate converts the prompt into *anthropic.MessageNewParams.
func (a *Adapter) Translate(ctx context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (any, error) {
	return a.TranslateTyped(ctx, prompt, opts)
}

// TranslateTyped returns the concrete type so callers avoid type assertion.
// System messages are joined into the dedicated system field.
func (a *Adapter) TranslateTyped(_ context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (*anthropic.MessageNewParams, error) {
	if err := adapter.CheckPrompt(prompt); err != nil {
		return nil, err
	}
	model, err := adapter.ResolveModel(opts, a.defaultModel)
	if err != nil {
		return nil, err
	}
	params := &anthropic.MessageNewParams{
		MaxTokens: defaultMaxTokens,
		Model:     anthropic.Model(model),
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(*opts.TopP)
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	system, rest := adapter.SplitSystem(prompt.Messages())
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: anthropic needs at least one user message", adapter.ErrEmptyPrompt)
	}
	params.Messages = make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		switch msg.Role {
		case promptchain.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case promptchain.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return nil, fmt.Errorf("%w: %q", adapter.ErrUnsupportedRole, msg.Role)
		}
	}
	return params, nil
}

// ParseResponse converts *anthropic.Message into a ModelResponse. Text blocks are concatenated.
func (a *Adapter) ParseResponse(_ context.Context, raw any) (*promptchain.ModelResponse, error) {
	msg, ok := raw.(*anthropic.Message)
	if !ok || msg == nil {
		return nil, adapter.ErrInvalidResponse
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, adapter.ErrEmptyResponse
	}
	return &promptchain.ModelResponse{
		Text:         sb.String(),
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: promptchain.Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}, nil
}

// ParseStreamChunk converts one stream event. Text deltas carry text; message_start and
// message_delta carry usage and the stop reason. Other events return nil.
func (a *Adapter) ParseStreamChunk(_ context.Context, rawChunk any) (*promptchain.ModelResponse, error) {
	event, ok := rawChunk.(*anthropic.MessageStreamEventUnion)
	if !ok || event == nil {
		return nil, adapter.ErrInvalidResponse
	}
	switch ev := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
			return &promptchain.ModelResponse{Text: delta.Text}, nil
		}
	case anthropic.MessageStartEvent:
		in := ev.Message.Usage.InputTokens
		return &promptchain.ModelResponse{
			Model: string(ev.Message.Model),
			Usage: promptchain.Usage{PromptTokens: in, TotalTokens: in},
		}, nil
	case anthropic.MessageDeltaEvent:
		out := ev.Usage.OutputTokens
		return &promptchain.ModelResponse{
			FinishReason: string(ev.Delta.StopReason),
			Usage:        promptchain.Usage{CompletionTokens: out, TotalTokens: out},
		}, nil
	}
	return nil, nil
}

// Compile-time checks.
var (
	_ adapter.ProviderAdapter = (*Adapter)(nil)
	_ promptchain.ChatModel   = (*Model)(nil)
)

// ClientOption configures a Model.
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL      string
	httpClient   *http.Client
	maxRetries   *int
	defaultModel string
	logger       *slog.Logger
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client. If hc is nil, the SDK default is used.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithMaxRetries sets the SDK retry count.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) { c.maxRetries = &n }
}

// WithDefaultModel sets the model used when call options do not name one.
func WithDefaultModel(m string) ClientOption {
	return func(c *clientConfig) { c.defaultModel = m }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// Model is a promptchain.ChatModel backed by the Messages API.
type Model struct {
	client  anthropic.Client
	adapter *Adapter
	logger  *slog.Logger
}

// NewModel returns a chat model. apiKey is required.
func NewModel(apiKey string, opts ...ClientOption) (*Model, error) {
	cfg := clientConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic", adapter.ErrMissingAPIKey)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.maxRetries != nil {
		reqOpts = append(reqOpts, option.WithMaxRetries(*cfg.maxRetries))
	}
	var adapterOpts []Option
	if cfg.defaultModel != "" {
		adapterOpts = append(adapterOpts, WithModel(cfg.defaultModel))
	}
	return &Model{
		client:  anthropic.NewClient(reqOpts...),
		adapter: New(adapterOpts...),
		logger:  cfg.logger,
	}, nil
}

// Generate sends the prompt and returns the concatenated text blocks.
func (m *Model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	params, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "anthropic request", "model", params.Model, "messages", len(params.Messages))
	msg, err := m.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic: %w", adapter.ErrProviderCall, err)
	}
	return m.adapter.ParseResponse(ctx, msg)
}

// Stream yields text deltas followed by usage and stop-reason chunks.
func (m *Model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		params, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
		if err != nil {
			yield(nil, err)
			return
		}
		m.logger.DebugContext(ctx, "anthropic stream", "model", params.Model, "messages", len(params.Messages))
		stream := m.client.Messages.NewStreaming(ctx, *params)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			resp, err := m.adapter.ParseStreamChunk(ctx, &event)
			if err != nil {
				yield(nil, err)
				return
			}
			if resp == nil {
				continue
			}
			if !yield(resp, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(nil, fmt.Errorf("%w: anthropic stream: %w", adapter.ErrProviderCall, err))
		}
	}
}
