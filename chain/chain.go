package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/skosovsky/promptchain"
)

// ErrStageInput is returned when a stage receives a value of the wrong type.
var ErrStageInput = errors.New("chain: stage input has unexpected type")

// Runnable is a unit of work with typed input and output.
type Runnable[I, O any] interface {
	Invoke(ctx context.Context, input I) (O, error)
}

// Func adapts a context-aware function into a Runnable.
type Func[I, O any] func(ctx context.Context, input I) (O, error)

// Invoke calls f.
func (f Func[I, O]) Invoke(ctx context.Context, input I) (O, error) { return f(ctx, input) }

// StageName implements Named.
func (Func[I, O]) StageName() string { return "func" }

// Lambda adapts a plain unary function into a Runnable.
func Lambda[I, O any](fn func(I) O) Runnable[I, O] {
	return lambda[I, O](fn)
}

type lambda[I, O any] func(I) O

func (l lambda[I, O]) Invoke(_ context.Context, input I) (O, error) { return l(input), nil }

func (lambda[I, O]) StageName() string { return "lambda" }

// Named is implemented by stages that report their own name in logs, hooks and errors.
type Named interface {
	StageName() string
}

// Chain is a typed view over a Sequence. It is itself a Runnable, so chains nest.
type Chain[I, O any] struct {
	seq *Sequence
}

// Pipe composes two runnables. Nested chains are flattened unless they were configured
// with With: those run as one stage named "chain" under their own hooks and logger.
func Pipe[A, B, C any](first Runnable[A, B], second Runnable[B, C]) *Chain[A, C] {
	stages := append(flatten[A, B](first), flatten[B, C](second)...)
	return &Chain[A, C]{seq: NewSequence(stages...)}
}

// Pipe3 composes three runnables, typically prompt, model and parser.
func Pipe3[A, B, C, D any](first Runnable[A, B], second Runnable[B, C], third Runnable[C, D]) *Chain[A, D] {
	stages := append(flatten[A, B](first), flatten[B, C](second)...)
	stages = append(stages, flatten[C, D](third)...)
	return &Chain[A, D]{seq: NewSequence(stages...)}
}

// With returns a copy of the chain with opts applied to its sequence.
func (c *Chain[I, O]) With(opts ...Option) *Chain[I, O] {
	return &Chain[I, O]{seq: c.seq.With(opts...)}
}

// Sequence returns the underlying dynamically typed sequence.
func (c *Chain[I, O]) Sequence() *Sequence { return c.seq }

// Invoke runs every stage in order.
func (c *Chain[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	var zero O
	out, err := c.seq.Invoke(ctx, input)
	if err != nil {
		return zero, err
	}
	typed, ok := as[O](out)
	if !ok {
		return zero, fmt.Errorf("%w: chain output is %T, want %T", ErrStageInput, out, zero)
	}
	return typed, nil
}

// StageName implements Named.
func (c *Chain[I, O]) StageName() string { return "chain" }

func (c *Chain[I, O]) flatStages() ([]Stage, bool) {
	if c.seq.configured {
		return nil, false
	}
	return c.seq.Stages(), true
}

type stager interface {
	flatStages() ([]Stage, bool)
}

func flatten[I, O any](r Runnable[I, O]) []Stage {
	if s, ok := r.(stager); ok {
		if stages, ok := s.flatStages(); ok {
			return stages
		}
	}
	return []Stage{Erase(r)}
}

// Stage is a type-erased Runnable used by Sequence.
type Stage interface {
	Named
	Invoke(ctx context.Context, input any) (any, error)
}

// Erase converts a typed Runnable into a Stage. A nil input becomes the zero value of I.
func Erase[I, O any](r Runnable[I, O]) Stage {
	if s, ok := any(r).(Stage); ok {
		return s
	}
	return &erased[I, O]{r: r, name: stageName(r)}
}

type erased[I, O any] struct {
	r    Runnable[I, O]
	name string
}

func (e *erased[I, O]) StageName() string { return e.name }

func (e *erased[I, O]) Invoke(ctx context.Context, input any) (any, error) {
	in, ok := as[I](input)
	if !ok {
		var zero I
		return nil, fmt.Errorf("%w: %s wants %T, got %T", ErrStageInput, e.name, zero, input)
	}
	return e.r.Invoke(ctx, in)
}

func stageName(v any) string {
	if n, ok := v.(Named); ok {
		return n.StageName()
	}
	return fmt.Sprintf("%T", v)
}

func as[T any](v any) (T, bool) {
	var zero T
	if v == nil {
		return zero, true
	}
	t, ok := v.(T)
	return t, ok
}

// Compile-time checks.
var (
	_ Runnable[promptchain.Values, *promptchain.PromptValue] = (*promptchain.ChatPromptTemplate)(nil)
	_ Runnable[promptchain.Values, *promptchain.PromptValue] = (*promptchain.PromptTemplate)(nil)
)
