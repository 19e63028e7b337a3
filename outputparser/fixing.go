package outputparser

import (
	"context"
	"errors"
	"log/slog"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
)

// Corrector produces a repaired completion from a failed one.
type Corrector interface {
	Correct(ctx context.Context, instructions, completion string, cause error) (string, error)
}

// CorrectorFunc adapts a function into a Corrector.
type CorrectorFunc func(ctx context.Context, instructions, completion string, cause error) (string, error)

// Correct calls f.
func (f CorrectorFunc) Correct(ctx context.Context, instructions, completion string, cause error) (string, error) {
	return f(ctx, instructions, completion, cause)
}

// FixingOption configures a FixingParser.
type FixingOption func(*fixingConfig)

type fixingConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger for repair attempts. Default is slog.Default().
func WithLogger(l *slog.Logger) FixingOption {
	return func(c *fixingConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// FixingParser retries a failed parse exactly once with a corrected completion.
type FixingParser[T any] struct {
	parser    Parser[T]
	corrector Corrector
	logger    *slog.Logger
}

// Fixing wraps parser. On ErrOutputParse or ErrSchemaValidation the corrector is called
// once and its output parsed once. If that parse fails too, the original error is returned.
// If the corrector itself fails, its error is returned.
func Fixing[T any](parser Parser[T], corrector Corrector, opts ...FixingOption) *FixingParser[T] {
	cfg := fixingConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FixingParser[T]{parser: parser, corrector: corrector, logger: cfg.logger}
}

// Parse parses text, repairing it at most once.
func (p *FixingParser[T]) Parse(ctx context.Context, text string) (T, error) {
	out, err := p.parser.Parse(ctx, text)
	if err == nil || !repairable(err) {
		return out, err
	}
	var zero T
	p.logger.DebugContext(ctx, "parse failed, requesting correction", "error", err)
	fixed, cerr := p.corrector.Correct(ctx, p.parser.FormatInstructions(), text, err)
	if cerr != nil {
		return zero, cerr
	}
	out, retryErr := p.parser.Parse(ctx, fixed)
	if retryErr != nil {
		p.logger.DebugContext(ctx, "corrected output still invalid", "error", retryErr)
		return zero, err
	}
	return out, nil
}

// Invoke parses resp.Text.
func (p *FixingParser[T]) Invoke(ctx context.Context, resp *promptchain.ModelResponse) (T, error) {
	return p.Parse(ctx, responseText(resp))
}

// FormatInstructions returns the wrapped parser's instructions.
func (p *FixingParser[T]) FormatInstructions() string { return p.parser.FormatInstructions() }

// StageName implements chain.Named.
func (p *FixingParser[T]) StageName() string { return "fixing_parser" }

func repairable(err error) bool {
	return errors.Is(err, promptchain.ErrOutputParse) || errors.Is(err, promptchain.ErrSchemaValidation)
}

// FixPrompt is the prompt ModelCorrector sends. It binds instructions, completion and error.
const FixPrompt = `Instructions:
--------------
{instructions}
--------------
Completion:
--------------
{completion}
--------------

Above, the Completion did not satisfy the constraints given in the Instructions.
Error:
--------------
{error}
--------------

Please try again. Please only respond with an answer that satisfies the constraints laid out in the Instructions:`

var fixPrompt = promptchain.MustPromptTemplate(FixPrompt, promptchain.WithMetadata(promptchain.PromptMetadata{ID: "output_fixing"}))

// ModelCorrector returns a Corrector that asks model to rewrite the completion.
func ModelCorrector(model promptchain.ChatModel, opts ...promptchain.CallOption) Corrector {
	fix := chain.Pipe3(fixPrompt, chain.Model(model, opts...), String())
	return CorrectorFunc(func(ctx context.Context, instructions, completion string, cause error) (string, error) {
		return fix.Invoke(ctx, promptchain.Values{
			"instructions": instructions,
			"completion":   completion,
			"error":        cause.Error(),
		})
	})
}
