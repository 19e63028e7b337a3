package chain

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/skosovsky/promptchain"
)

// StageEvent describes one finished stage. Input is what the stage received and Output
// what it returned; Output of stage i is Input of stage i+1.
type StageEvent struct {
	Index    int
	Stage    string
	Input    any
	Output   any
	Err      error
	Duration time.Duration
}

// Option configures a Sequence.
type Option func(*Sequence)

// WithStageHook registers fn to observe every finished stage. Hooks run synchronously on
// the invoking goroutine, in registration order.
func WithStageHook(fn func(StageEvent)) Option {
	return func(s *Sequence) {
		if fn != nil {
			s.hooks = append(s.hooks, fn)
		}
	}
}

// WithLogger sets the logger for stage transitions. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequence) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sequence is an ordered list of dynamically typed stages.
// It is immutable after construction and safe for concurrent Invoke calls.
type Sequence struct {
	stages []Stage
	hooks  []func(StageEvent)
	logger *slog.Logger
	// configured is set once With applied options. Such sequences are not flattened into
	// an enclosing chain, so their hooks and logger keep observing their own stages.
	configured bool
}

// NewSequence returns a sequence running stages in order.
func NewSequence(stages ...Stage) *Sequence {
	return &Sequence{stages: slices.Clone(stages), logger: slog.Default()}
}

// With returns a copy of the sequence with opts applied.
func (s *Sequence) With(opts ...Option) *Sequence {
	out := &Sequence{stages: s.stages, hooks: slices.Clone(s.hooks), logger: s.logger, configured: s.configured || len(opts) > 0}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Stages returns a copy of the stage list.
func (s *Sequence) Stages() []Stage { return slices.Clone(s.stages) }

// Len returns the number of stages.
func (s *Sequence) Len() int { return len(s.stages) }

// StageName implements Named.
func (s *Sequence) StageName() string { return "sequence" }

// Invoke feeds input through every stage. Stage i+1 starts only after stage i returned.
// The first failure aborts the remaining stages.
func (s *Sequence) Invoke(ctx context.Context, input any) (any, error) {
	cur := input
	for i, st := range s.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := st.StageName()
		s.logger.DebugContext(ctx, "stage started", "index", i, "stage", name)
		start := time.Now()
		out, err := st.Invoke(ctx, cur)
		ev := StageEvent{Index: i, Stage: name, Input: cur, Output: out, Err: err, Duration: time.Since(start)}
		for _, hook := range s.hooks {
			hook(ev)
		}
		if err != nil {
			s.logger.DebugContext(ctx, "stage failed", "index", i, "stage", name, "error", err)
			return nil, wrapStageError(i, name, err)
		}
		s.logger.DebugContext(ctx, "stage finished", "index", i, "stage", name, "duration", ev.Duration)
		cur = out
	}
	return cur, nil
}

// wrapStageError keeps template and parser errors as they are and reports anything else
// as a failure of stage index. A StageError raised by a chain running inside the stage
// (a corrector, a combine chain) becomes the cause, so the outermost index is the one
// errors.As finds.
func wrapStageError(index int, name string, err error) error {
	if promptchain.IsStructural(err) {
		return err
	}
	return &promptchain.StageError{Index: index, Stage: name, Err: err}
}
