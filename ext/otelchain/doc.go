// Package otelchain adds OpenTelemetry tracing to promptchain model calls.
//
// Wrap returns a ChatModel that opens one span per Generate or Stream call, tagged with
// GenAI semantic-convention attributes (system, request options, response model, finish
// reason, token usage). StageHook records chain stages as events on the caller's span.
//
//	model := otelchain.Wrap(openaiModel, otelchain.WithSystem("openai"))
//	c := chain.Pipe3(prompt, chain.Model(model), outputparser.String()).
//		With(chain.WithStageHook(otelchain.StageHook(ctx)))
package otelchain
