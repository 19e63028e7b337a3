package gemini

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"net/http"

	"google.golang.org/genai"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"
)

// DefaultModel is used when neither the adapter nor the call options name a model.
const DefaultModel = "gemini-2.5-flash"

// Request wraps the model name, Contents and Config for the GenerateContent API.
type Request struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// Adapter implements adapter.ProviderAdapter for the Google Gemini (genai) API.
// Translate returns *gemini.Request; ParseResponse and ParseStreamChunk expect
// *genai.GenerateContentResponse.
type Adapter struct {
	defaultModel string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithModel sets the default model used when the call options do not name one.
func WithModel(m string) Option {
	return func(a *Adapter) { a.defaultModel = m }
}

// New returns an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{defaultModel: DefaultModel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Translate converts the prompt into *Request.
func (a *Adapter) Translate(ctx context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (any, error) {
	return a.TranslateTyped(ctx, prompt, opts)
}

// TranslateTyped returns the concrete type so callers avoid type assertion.
// System messages become the SystemInstruction; a ResponseFormat switches the response
// MIME type to application/json with the converted schema.
func (a *Adapter) TranslateTyped(_ context.Context, prompt *promptchain.PromptValue, opts promptchain.CallOptions) (*Request, error) {
	if err := adapter.CheckPrompt(prompt); err != nil {
		return nil, err
	}
	model, err := adapter.ResolveModel(opts, a.defaultModel)
	if err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		config.Temperature = &t
	}
	if opts.MaxTokens != nil {
		if *opts.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(*opts.MaxTokens)
		}
	}
	if opts.TopP != nil {
		p := float32(*opts.TopP)
		config.TopP = &p
	}
	if len(opts.Stop) > 0 {
		config.StopSequences = opts.Stop
	}
	if rf := opts.ResponseFormat; rf != nil {
		schema, err := toGenaiSchema(rf.Schema)
		if err != nil {
			return nil, fmt.Errorf("gemini: response format %q: %w", rf.Name, err)
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}
	system, rest := adapter.SplitSystem(prompt.Messages())
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: gemini needs at least one user message", adapter.ErrEmptyPrompt)
	}
	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		switch msg.Role {
		case promptchain.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case promptchain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			return nil, fmt.Errorf("%w: %q", adapter.ErrUnsupportedRole, msg.Role)
		}
	}
	return &Request{Model: model, Contents: contents, Config: config}, nil
}

// ParseResponse converts *genai.GenerateContentResponse into a ModelResponse.
func (a *Adapter) ParseResponse(_ context.Context, raw any) (*promptchain.ModelResponse, error) {
	resp, ok := raw.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return nil, adapter.ErrInvalidResponse
	}
	out := toModelResponse(resp)
	if out.Text == "" {
		return nil, adapter.ErrEmptyResponse
	}
	return out, nil
}

// ParseStreamChunk converts one streamed response. Chunks without text, finish reason
// or usage return nil.
func (a *Adapter) ParseStreamChunk(_ context.Context, rawChunk any) (*promptchain.ModelResponse, error) {
	resp, ok := rawChunk.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return nil, adapter.ErrInvalidResponse
	}
	out := toModelResponse(resp)
	if out.Text == "" && out.FinishReason == "" && out.Usage.TotalTokens == 0 {
		return nil, nil
	}
	return out, nil
}

func toModelResponse(resp *genai.GenerateContentResponse) *promptchain.ModelResponse {
	out := &promptchain.ModelResponse{Text: resp.Text(), Model: resp.ModelVersion}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = promptchain.Usage{
			PromptTokens:     int64(u.PromptTokenCount),
			CompletionTokens: int64(u.CandidatesTokenCount),
			TotalTokens:      int64(u.TotalTokenCount),
		}
	}
	return out
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
	defaultModel string
	logger       *slog.Logger
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used by the genai SDK.
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

// Model is a promptchain.ChatModel backed by the Gemini Developer API.
type Model struct {
	client  *genai.Client
	adapter *Adapter
	logger  *slog.Logger
}

// NewModel returns a chat model. apiKey is required.
func NewModel(ctx context.Context, apiKey string, opts ...ClientOption) (*Model, error) {
	cfg := clientConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini", adapter.ErrMissingAPIKey)
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", adapter.ErrProviderCall, err)
	}
	var adapterOpts []Option
	if cfg.defaultModel != "" {
		adapterOpts = append(adapterOpts, WithModel(cfg.defaultModel))
	}
	return &Model{client: client, adapter: New(adapterOpts...), logger: cfg.logger}, nil
}

// Generate sends the prompt and returns the first candidate's text.
func (m *Model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	req, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "gemini request", "model", req.Model, "contents", len(req.Contents))
	resp, err := m.client.Models.GenerateContent(ctx, req.Model, req.Contents, req.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %w", adapter.ErrProviderCall, err)
	}
	return m.adapter.ParseResponse(ctx, resp)
}

// Stream yields partial responses from GenerateContentStream.
func (m *Model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		req, err := m.adapter.TranslateTyped(ctx, prompt, promptchain.NewCallOptions(opts...))
		if err != nil {
			yield(nil, err)
			return
		}
		m.logger.DebugContext(ctx, "gemini stream", "model", req.Model, "contents", len(req.Contents))
		for chunk, err := range m.client.Models.GenerateContentStream(ctx, req.Model, req.Contents, req.Config) {
			if err != nil {
				yield(nil, fmt.Errorf("%w: gemini stream: %w", adapter.ErrProviderCall, err))
				return
			}
			resp, err := m.adapter.ParseStreamChunk(ctx, chunk)
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
	}
}
