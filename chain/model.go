package chain

import (
	"context"
	"errors"
	"iter"
	"slices"

	"github.com/skosovsky/promptchain"
)

// ErrNilPrompt is returned by a model stage that receives no prompt.
var ErrNilPrompt = errors.New("chain: model stage received nil prompt")

// ModelStage adapts a ChatModel as a chain stage with fixed call options.
type ModelStage struct {
	model promptchain.ChatModel
	opts  []promptchain.CallOption
}

// Model returns a stage that sends its prompt to m. opts apply to every call.
func Model(m promptchain.ChatModel, opts ...promptchain.CallOption) *ModelStage {
	return &ModelStage{model: m, opts: slices.Clone(opts)}
}

// Invoke generates a complete response.
func (s *ModelStage) Invoke(ctx context.Context, prompt *promptchain.PromptValue) (*promptchain.ModelResponse, error) {
	if prompt == nil {
		return nil, ErrNilPrompt
	}
	return s.model.Generate(ctx, prompt, s.opts...)
}

// Stream yields partial responses as the provider produces them.
func (s *ModelStage) Stream(ctx context.Context, prompt *promptchain.PromptValue) iter.Seq2[*promptchain.ModelResponse, error] {
	if prompt == nil {
		return func(yield func(*promptchain.ModelResponse, error) bool) { yield(nil, ErrNilPrompt) }
	}
	return s.model.Stream(ctx, prompt, s.opts...)
}

// StageName implements Named.
func (s *ModelStage) StageName() string { return "model" }
