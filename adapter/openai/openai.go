package openai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"
)

// Defaults for OpenAI and OpenAI-compatible endpoints.
const (
	DefaultModel          = openai.ChatModelGPT4oMini
	DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small
	DeepSeekBaseURL       = "https://api.deepseek.com/v1/"
	DeepSeekModel         = "deepseek-chat"
)

// Adapter implements adapter.ProviderAdapter for the OpenAI Chat Completions API.
// Translate returns *openai.ChatCompletionNewParams; ParseResponse expects *openai.ChatCompletion
// and ParseStreamChunk expects *openai.ChatCompletionChunk.
type Adapter struct {
	defaultModel string
}

// Option configures an Adapter (e.g. WithModel).
type Option func(*Adapter)

// WithModel sets the default model used when the call options do not name one.
func WithModel(m string) Option {
	return func(a *Adapter) { a.defaultModel = m }
}

// New returns an Adapter with default model set to gpt-4o-mini.
func New(opts ...Option) *Adapter {
	a := &Adapter{defaultModel: DefaultModel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Translate converts the prompt into *openai.ChatCompletionNewParams.
func (a *Adapter) Translate(ctx context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (any, error) {
	return a.TranslateTyped(ctx, prompt, opts)
}

// TranslateTyped returns the concrete type so callers avoid type assertion.
func (a *Adapter) TranslateTyped(_ context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (*openai.ChatCompletionNewParams, error) {
	if err := adapter.CheckPrompt(prompt); err != nil {
		return nil, err
	}
	model, err := adapter.ResolveModel(opts, a.defaultModel)
	if err != nil {
		return nil, err
	}
	msgs := prompt.Messages()
	params := &openai.ChatCompletionNewParams{
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)),
		Model:    shared.ChatModel(model),
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(*opts.MaxTokens)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}
	if rf := opts.ResponseFormat; rf != nil {
		schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{Name: rf.Name, Schema: rf.Schema}
		if rf.Description != "" {
			schema.Description = openai.String(rf.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	}
	for _, msg := range msgs {
		switch msg.Role {
		case promptchain.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case promptchain.RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		case promptchain.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			return nil, fmt.Errorf("%w: %q", adapter.ErrUnsupportedRole, msg.Role)
		}
	}
	return params, nil
}

// ParseResponse converts *openai.ChatCompletion into a ModelResponse.
func (a *Adapter) ParseResponse(_ context.Context, raw any) (*promptchain.ModelResponse, error) {
	completion, ok := raw.(*openai.ChatCompletion)
	if !ok || completion == nil {
		return nil, adapter.ErrInvalidResponse
	}
	if len(completion.Choices) == 0 {
		return nil, adapter.ErrEmptyResponse
	}
	choice := completion.Choices[0]
	return &promptchain.ModelResponse{
		Text:         choice.Message.Content,
		Model:        completion.Model,
		FinishReason: string(choice.FinishReason),
		Usage: promptchain.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}

// ParseStreamChunk converts *openai.ChatCompletionChunk into a partial ModelResponse.
// Returns nil for chunks with neither text, finish reason nor usage.
func (a *Adapter) ParseStreamChunk(_ context.Context, rawChunk any) (*promptchain.ModelResponse, error) {
	chunk, ok := rawChunk.(*openai.ChatCompletionChunk)
	if !ok || chunk == nil {
		return nil, adapter.ErrInvalidResponse
	}
	resp := &promptchain.ModelResponse{Model: chunk.Model}
	if len(chunk.Choices) > 0 {
		resp.Text = chunk.Choices[0].Delta.Content
		resp.FinishReason = string(chunk.Choices[0].FinishReason)
	}
	resp.Usage = promptchain.Usage{
		PromptTokens:     chunk.Usage.PromptTokens,
		CompletionTokens: chunk.Usage.CompletionTokens,
		TotalTokens:      chunk.Usage.TotalTokens,
	}
	if resp.Text == "" && resp.FinishReason == "" && resp.Usage.TotalTokens == 0 {
		return nil, nil
	}
	return resp, nil
}

// Compile-time checks.
var (
	_ adapter.ProviderAdapter = (*Adapter)(nil)
	_ promptchain.ChatModel   = (*Model)(nil)
	_ promptchain.Embedder    = (*Embedder)(nil)
)

// ClientOption configures Model and Embedder clients.
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL      string
	httpClient   *http.Client
	maxRetries   *int
	defaultModel string
	logger       *slog.Logger
}

// WithBaseURL points the client at an OpenAI-compatible endpoint (DeepSeek, vLLM, proxies).
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client. If hc is nil, the SDK default is used.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithMaxRetries sets the SDK retry count for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) { c.maxRetries = &n }
}

// WithDefaultModel sets the model used when call options do not name one.
func WithDefaultModel(m string) ClientOption {
	return func(c *clientConfig) { c.defaultModel = m }
}

// WithLogger sets the logger for request diagnostics. Default is slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

func newClient(apiKey string, opts []ClientOption) (openai.Client, clientConfig, error) {
	cfg := clientConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if apiKey == "" {
		return openai.Client{}, cfg, fmt.Errorf("%w: openai", adapter.ErrMissingAPIKey)
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
	return openai.NewClient(reqOpts...), cfg, nil
}

// Model is a promptchain.ChatModel backed by the Chat Completions API.
type Model struct {
	client  openai.Client
	adapter *Adapter
	logger  *slog.Logger
}

// NewModel returns a chat model. apiKey is required; credentials are never read from the environment here.
func NewModel(apiKey string, opts ...ClientOption) (*Model, error) {
	client, cfg, err := newClient(apiKey, opts)
	if err != nil {
		return nil, err
	}
	var adapterOpts []Option
	if cfg.defaultModel != "" {
		adapterOpts = append(adapterOpts, WithModel(cfg.defaultModel))
	}
	return &Model{client: client, adapter: New(adapterOpts...), logger: cfg.logger}, nil
}

// NewDeepSeek returns a chat model for the DeepSeek OpenAI-compatible API.
// Options may override the base URL and default model.
func NewDeepSeek(apiKey string, opts ...ClientOption) (*Model, error) {
	base := []ClientOption{WithBaseURL(DeepSeekBaseURL), WithDefaultModel(DeepSeekModel)}
	return NewModel(apiKey, append(base, opts...)...)
}

// Generate sends the prompt and returns the first choice.
func (m *Model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	params, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "openai request", "model", params.Model, "messages", len(params.Messages))
	completion, err := m.client.Chat.Completions.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", adapter.ErrProviderCall, err)
	}
	return m.adapter.ParseResponse(ctx, completion)
}

// Stream yields content deltas. The final chunk carries the finish reason and usage.
func (m *Model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		params, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
		if err != nil {
			yield(nil, err)
			return
		}
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
		m.logger.DebugContext(ctx, "openai stream", "model", params.Model, "messages", len(params.Messages))
		stream := m.client.Chat.Completions.NewStreaming(ctx, *params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			resp, err := m.adapter.ParseStreamChunk(ctx, &chunk)
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
			yield(nil, fmt.Errorf("%w: openai stream: %w", adapter.ErrProviderCall, err))
		}
	}
}

// Embedder is a promptchain.Embedder backed by the embeddings API.
type Embedder struct {
	client openai.Client
	model  string
}

// NewEmbedder returns an embedder. The default model is text-embedding-3-small; override it
// with WithDefaultModel.
func NewEmbedder(apiKey string, opts ...ClientOption) (*Embedder, error) {
	client, cfg, err := newClient(apiKey, opts)
	if err != nil {
		return nil, err
	}
	model := cfg.defaultModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: model}, nil
}

// EmbedDocuments embeds texts in one request, returning vectors in input order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %w", adapter.ErrProviderCall, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", adapter.ErrInvalidResponse, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", adapter.ErrInvalidResponse, d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
