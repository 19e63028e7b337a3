package chain

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/skosovsky/promptchain"
)

// ErrStreamConsumed is yielded when a stream is ranged over a second time.
var ErrStreamConsumed = errors.New("chain: stream already consumed")

// Transformer is implemented by tail stages that can work on text chunks as they arrive.
type Transformer[O any] interface {
	Transform(ctx context.Context, chunks iter.Seq2[string, error]) iter.Seq2[O, error]
}

// Stream renders input with prompt, streams the model and passes the chunks through tail.
// If tail implements Transformer, outputs are produced chunk by chunk; otherwise the whole
// text is buffered and tail runs once on the concatenation.
// The returned sequence is lazy and can be consumed only once. Stage indices in errors
// are 0 (prompt), 1 (model) and 2 (tail).
func Stream[I, O any](
	ctx context.Context,
	prompt Runnable[I, *promptchain.PromptValue],
	model *ModelStage,
	tail Runnable[*promptchain.ModelResponse, O],
	input I,
) iter.Seq2[O, error] {
	var used atomic.Bool
	return func(yield func(O, error) bool) {
		var zero O
		if used.Swap(true) {
			yield(zero, ErrStreamConsumed)
			return
		}
		pv, err := prompt.Invoke(ctx, input)
		if err != nil {
			yield(zero, wrapStageError(0, stageName(prompt), err))
			return
		}
		chunks := textChunks(model.Stream(ctx, pv))
		if t, ok := tail.(Transformer[O]); ok {
			for out, err := range t.Transform(ctx, chunks) {
				if err != nil {
					yield(zero, tailError(err))
					return
				}
				if !yield(out, nil) {
					return
				}
			}
			return
		}
		var b strings.Builder
		for chunk, err := range chunks {
			if err != nil {
				yield(zero, tailError(err))
				return
			}
			b.WriteString(chunk)
		}
		out, err := tail.Invoke(ctx, &promptchain.ModelResponse{Text: b.String()})
		if err != nil {
			yield(zero, wrapStageError(2, stageName(tail), err))
			return
		}
		yield(out, nil)
	}
}

// StreamResponses renders input with prompt and yields the raw model chunks.
// Like Stream, the sequence can be consumed only once.
func StreamResponses[I any](
	ctx context.Context,
	prompt Runnable[I, *promptchain.PromptValue],
	model *ModelStage,
	input I,
) iter.Seq2[*promptchain.ModelResponse, error] {
	var used atomic.Bool
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		if used.Swap(true) {
			yield(nil, ErrStreamConsumed)
			return
		}
		pv, err := prompt.Invoke(ctx, input)
		if err != nil {
			yield(nil, wrapStageError(0, stageName(prompt), err))
			return
		}
		for resp, err := range model.Stream(ctx, pv) {
			if err != nil {
				yield(nil, wrapStageError(1, model.StageName(), err))
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// modelStreamError marks errors raised by the model so tailError can attribute them.
type modelStreamError struct{ err error }

func (e *modelStreamError) Error() string { return e.err.Error() }
func (e *modelStreamError) Unwrap() error { return e.err }

func textChunks(responses iter.Seq2[*promptchain.ModelResponse, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield("", &modelStreamError{err: err})
				return
			}
			if resp == nil || resp.Text == "" {
				continue
			}
			if !yield(resp.Text, nil) {
				return
			}
		}
	}
}

func tailError(err error) error {
	var me *modelStreamError
	if errors.As(err, &me) {
		return wrapStageError(1, "model", me.err)
	}
	return wrapStageError(2, "parser", err)
}
