package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"
)

// Defaults for a local Ollama server.
const (
	DefaultModel          = "llama3.2"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultHost           = "http://localhost:11434"
)

// Adapter implements adapter.ProviderAdapter for the Ollama Chat API.
// Translate returns *api.ChatRequest; ParseResponse and ParseStreamChunk expect *api.ChatResponse.
type Adapter struct {
	defaultModel string
}

// Option configures an Adapter (e.g. WithModel).
type Option func(*Adapter)

// WithModel sets the default model used when the call options do not name one.
func WithModel(m string) Option {
	return func(a *Adapter) { a.defaultModel = m }
}

// New returns an Adapter with default model set to "llama3.2".
func New(opts ...Option) *Adapter {
	a := &Adapter{defaultModel: DefaultModel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Translate converts the prompt into *api.ChatRequest.
func (a *Adapter) Translate(ctx context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (any, error) {
	return a.TranslateTyped(ctx, prompt, opts)
}

// TranslateTyped returns the concrete type so callers avoid type assertion.
// Sampling settings go to the request's Options map; a ResponseFormat becomes Format.
func (a *Adapter) TranslateTyped(_ context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (*api.ChatRequest, error) {
	if err := adapter.CheckPrompt(prompt); err != nil {
		return nil, err
	}
	model, err := adapter.ResolveModel(opts, a.defaultModel)
	if err != nil {
		return nil, err
	}
	msgs := prompt.Messages()
	req := &api.ChatRequest{
		Model:    model,
		Messages: make([]api.Message, 0, len(msgs)),
	}
	if opts.Temperature != nil || opts.MaxTokens != nil || opts.TopP != nil || len(opts.Stop) > 0 {
		req.Options = make(map[string]any)
		if opts.Temperature != nil {
			req.Options["temperature"] = *opts.Temperature
		}
		if opts.MaxTokens != nil {
			req.Options["num_predict"] = *opts.MaxTokens
		}
		if opts.TopP != nil {
			req.Options["top_p"] = *opts.TopP
		}
		if len(opts.Stop) > 0 {
			req.Options["stop"] = opts.Stop
		}
	}
	if rf := opts.ResponseFormat; rf != nil {
		raw, err := json.Marshal(rf.Schema)
		if err != nil {
			return nil, fmt.Errorf("ollama: response format %q: %w", rf.Name, err)
		}
		req.Format = raw
	}
	for _, msg := range msgs {
		switch msg.Role {
		case promptchain.RoleSystem, promptchain.RoleUser, promptchain.RoleAssistant:
			req.Messages = append(req.Messages, api.Message{Role: string(msg.Role), Content: msg.Content})
		default:
			return nil, fmt.Errorf("%w: %q", adapter.ErrUnsupportedRole, msg.Role)
		}
	}
	return req, nil
}

// ParseResponse converts *api.ChatResponse into a ModelResponse.
func (a *Adapter) ParseResponse(_ context.Context, raw any) (*promptchain.ModelResponse, error) {
	resp, ok := raw.(*api.ChatResponse)
	if !ok || resp == nil {
		return nil, adapter.ErrInvalidResponse
	}
	if resp.Message.Content == "" {
		return nil, adapter.ErrEmptyResponse
	}
	return toModelResponse(resp), nil
}

// ParseStreamChunk converts one streamed *api.ChatResponse. Intermediate chunks carry text;
// the final chunk (Done) carries the finish reason and token counts.
func (a *Adapter) ParseStreamChunk(_ context.Context, rawChunk any) (*promptchain.ModelResponse, error) {
	chunk, ok := rawChunk.(*api.ChatResponse)
	if !ok || chunk == nil {
		return nil, adapter.ErrInvalidResponse
	}
	if chunk.Message.Content == "" && !chunk.Done {
		return nil, nil
	}
	return toModelResponse(chunk), nil
}

func toModelResponse(resp *api.ChatResponse) *promptchain.ModelResponse {
	out := &promptchain.ModelResponse{
		Text:         resp.Message.Content,
		Model:        resp.Model,
		FinishReason: resp.DoneReason,
	}
	if resp.Done {
		in, gen := int64(resp.PromptEvalCount), int64(resp.EvalCount)
		out.Usage = promptchain.Usage{PromptTokens: in, CompletionTokens: gen, TotalTokens: in + gen}
	}
	return out
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
	host         string
	httpClient   *http.Client
	defaultModel string
	logger       *slog.Logger
}

// WithHost sets the Ollama server URL. Default is http://localhost:11434.
func WithHost(u string) ClientOption {
	return func(c *clientConfig) { c.host = u }
}

// WithHTTPClient sets the HTTP client. Default is http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithDefaultModel sets the model used when call options do not name one.
func WithDefaultModel(m string) ClientOption {
	return func(c *clientConfig) { c.defaultModel = m }
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

func newClient(opts []ClientOption) (*api.Client, clientConfig, error) {
	cfg := clientConfig{host: DefaultHost, httpClient: http.DefaultClient, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	base, err := url.Parse(cfg.host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, cfg, fmt.Errorf("ollama: invalid host %q", cfg.host)
	}
	return api.NewClient(base, cfg.httpClient), cfg, nil
}

// Model is a promptchain.ChatModel backed by a local or remote Ollama server.
type Model struct {
	client  *api.Client
	adapter *Adapter
	logger  *slog.Logger
}

// NewModel returns a chat model. No API key is needed.
func NewModel(opts ...ClientOption) (*Model, error) {
	client, cfg, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	var adapterOpts []Option
	if cfg.defaultModel != "" {
		adapterOpts = append(adapterOpts, WithModel(cfg.defaultModel))
	}
	return &Model{client: client, adapter: New(adapterOpts...), logger: cfg.logger}, nil
}

// Generate sends a non-streaming chat request.
func (m *Model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	req, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
	if err != nil {
		return nil, err
	}
	stream := false
	req.Stream = &stream
	m.logger.DebugContext(ctx, "ollama request", "model", req.Model, "messages", len(req.Messages))
	var final *api.ChatResponse
	err = m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		final = &resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %w", adapter.ErrProviderCall, err)
	}
	if final == nil {
		return nil, adapter.ErrEmptyResponse
	}
	return m.adapter.ParseResponse(ctx, final)
}

// errStopped aborts the Chat callback loop when the consumer stops iterating.
var errStopped = errors.New("ollama: consumer stopped")

// Stream yields content deltas as the server produces them. The final chunk carries
// token counts and the done reason.
func (m *Model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		req, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
		if err != nil {
			yield(nil, err)
			return
		}
		m.logger.DebugContext(ctx, "ollama stream", "model", req.Model, "messages", len(req.Messages))
		var parseErr error
		err = m.client.Chat(ctx, req, func(chunk api.ChatResponse) error {
			resp, err := m.adapter.ParseStreamChunk(ctx, &chunk)
			if err != nil {
				parseErr = err
				return errStopped
			}
			if resp == nil {
				return nil
			}
			if !yield(resp, nil) {
				return errStopped
			}
			return nil
		})
		switch {
		case parseErr != nil:
			yield(nil, parseErr)
		case err != nil && !errors.Is(err, errStopped):
			yield(nil, fmt.Errorf("%w: ollama stream: %w", adapter.ErrProviderCall, err))
		}
	}
}

// Embedder is a promptchain.Embedder backed by the Ollama embed endpoint.
type Embedder struct {
	client *api.Client
	model  string
}

// NewEmbedder returns an embedder. The default model is nomic-embed-text.
func NewEmbedder(opts ...ClientOption) (*Embedder, error) {
	client, cfg, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	model := cfg.defaultModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: client, model: model}, nil
}

// EmbedDocuments embeds texts in one request.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embed: %w", adapter.ErrProviderCall, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", adapter.ErrInvalidResponse, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EmbedQuery embeds a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
