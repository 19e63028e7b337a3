package otelchain

import (
	"context"
	"iter"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
)

// ScopeName is the instrumentation scope of the tracer.
const ScopeName = "github.com/skosovsky/promptchain/ext/otelchain"

// GenAI semantic-convention attribute keys.
const (
	AttrSystem           = attribute.Key("gen_ai.system")
	AttrOperation        = attribute.Key("gen_ai.operation.name")
	AttrRequestModel     = attribute.Key("gen_ai.request.model")
	AttrTemperature      = attribute.Key("gen_ai.request.temperature")
	AttrMaxTokens        = attribute.Key("gen_ai.request.max_tokens")
	AttrTopP             = attribute.Key("gen_ai.request.top_p")
	AttrResponseModel    = attribute.Key("gen_ai.response.model")
	AttrFinishReasons    = attribute.Key("gen_ai.response.finish_reasons")
	AttrInputTokens      = attribute.Key("gen_ai.usage.input_tokens")
	AttrOutputTokens     = attribute.Key("gen_ai.usage.output_tokens")
	AttrPromptMessages   = attribute.Key("promptchain.prompt.messages")
	AttrPromptContent    = attribute.Key("promptchain.prompt.content")
	AttrCompletion       = attribute.Key("promptchain.completion")
	AttrStreamChunks     = attribute.Key("promptchain.stream.chunks")
	attrStageIndex       = attribute.Key("promptchain.stage.index")
	attrStageName        = attribute.Key("promptchain.stage.name")
	attrStageDurationSec = attribute.Key("promptchain.stage.duration_seconds")
)

var _ promptchain.ChatModel = (*Model)(nil)

// Model is a traced ChatModel.
type Model struct {
	next          promptchain.ChatModel
	tracer        trace.Tracer
	system        string
	recordContent bool
}

// Option configures Wrap.
type Option func(*config)

type config struct {
	provider      trace.TracerProvider
	system        string
	recordContent bool
}

// WithTracerProvider sets the provider. Default is otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.provider = tp }
}

// WithSystem names the provider in gen_ai.system (e.g. "openai").
func WithSystem(name string) Option {
	return func(c *config) { c.system = name }
}

// WithContent records the rendered prompt and the completion text on spans.
// Off by default: prompts may carry personal data.
func WithContent() Option {
	return func(c *config) { c.recordContent = true }
}

// Wrap returns next with tracing.
func Wrap(next promptchain.ChatModel, opts ...Option) *Model {
	cfg := config{system: "unknown"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.provider == nil {
		cfg.provider = otel.GetTracerProvider()
	}
	return &Model{
		next:          next,
		tracer:        cfg.provider.Tracer(ScopeName),
		system:        cfg.system,
		recordContent: cfg.recordContent,
	}
}

func (m *Model) start(ctx context.Context, prompt *promptchain.PromptValue, opts []promptchain.CallOption) (context.Context, trace.Span) {
	co := promptchain.NewCallOptions(opts...)
	name := "chat"
	if co.Model != "" {
		name += " " + co.Model
	}
	attrs := []attribute.KeyValue{
		AttrSystem.String(m.system),
		AttrOperation.String("chat"),
		AttrPromptMessages.Int(prompt.Len()),
	}
	if co.Model != "" {
		attrs = append(attrs, AttrRequestModel.String(co.Model))
	}
	if co.Temperature != nil {
		attrs = append(attrs, AttrTemperature.Float64(*co.Temperature))
	}
	if co.MaxTokens != nil {
		attrs = append(attrs, AttrMaxTokens.Int64(*co.MaxTokens))
	}
	if co.TopP != nil {
		attrs = append(attrs, AttrTopP.Float64(*co.TopP))
	}
	if m.recordContent {
		attrs = append(attrs, AttrPromptContent.String(prompt.String()))
	}
	return m.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func (m *Model) finish(span trace.Span, resp *promptchain.ModelResponse, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if resp == nil {
		return
	}
	if resp.Model != "" {
		span.SetAttributes(AttrResponseModel.String(resp.Model))
	}
	if resp.FinishReason != "" {
		span.SetAttributes(AttrFinishReasons.StringSlice([]string{resp.FinishReason}))
	}
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		span.SetAttributes(
			AttrInputTokens.Int64(resp.Usage.PromptTokens),
			AttrOutputTokens.Int64(resp.Usage.CompletionTokens),
		)
	}
	if m.recordContent {
		span.SetAttributes(AttrCompletion.String(resp.Text))
	}
}

// Generate traces one completion.
func (m *Model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	ctx, span := m.start(ctx, prompt, opts)
	resp, err := m.next.Generate(ctx, prompt, opts...)
	m.finish(span, resp, err)
	return resp, err
}

// Stream traces a streamed completion. The span ends when the sequence is exhausted,
// fails, or the consumer stops early; the recorded response aggregates all chunks.
func (m *Model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		ctx, span := m.start(ctx, prompt, opts)
		var (
			text   strings.Builder
			agg    promptchain.ModelResponse
			chunks int
			err    error
		)
		defer func() {
			span.SetAttributes(AttrStreamChunks.Int(chunks))
			agg.Text = text.String()
			m.finish(span, &agg, err)
		}()
		for chunk, cerr := range m.next.Stream(ctx, prompt, opts...) {
			if cerr != nil {
				err = cerr
				yield(nil, cerr)
				return
			}
			chunks++
			text.WriteString(chunk.Text)
			if chunk.Model != "" {
				agg.Model = chunk.Model
			}
			if chunk.FinishReason != "" {
				agg.FinishReason = chunk.FinishReason
			}
			if chunk.Usage.TotalTokens > 0 || chunk.Usage.PromptTokens > 0 {
				agg.Usage = chunk.Usage
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// StageHook returns a chain hook that adds one "chain.stage" event per finished stage to
// the span active in ctx. Failed stages also record the error.
func StageHook(ctx context.Context) func(chain.StageEvent) {
	span := trace.SpanFromContext(ctx)
	return func(ev chain.StageEvent) {
		attrs := trace.WithAttributes(
			attrStageIndex.Int(ev.Index),
			attrStageName.String(ev.Stage),
			attrStageDurationSec.Float64(ev.Duration.Seconds()),
		)
		if ev.Err != nil {
			span.RecordError(ev.Err, attrs)
			return
		}
		span.AddEvent("chain.stage", attrs)
	}
}
