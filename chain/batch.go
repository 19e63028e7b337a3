package chain

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds Batch when no limit is given.
const DefaultBatchConcurrency = 4

// BatchOption configures Batch.
type BatchOption func(*batchConfig)

type batchConfig struct {
	limit int
}

// WithMaxConcurrency caps the number of in-flight invocations. n <= 0 means unlimited.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) { c.limit = n }
}

// Batch invokes r on every input in parallel and returns the outputs in input order.
// The first error cancels the context passed to the remaining invocations and is returned.
func Batch[I, O any](ctx context.Context, r Runnable[I, O], inputs []I, opts ...BatchOption) ([]O, error) {
	cfg := batchConfig{limit: DefaultBatchConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	outs := make([]O, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.limit > 0 {
		g.SetLimit(cfg.limit)
	}
	for i, in := range inputs {
		g.Go(func() error {
			out, err := r.Invoke(gctx, in)
			if err != nil {
				return err
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}
