package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"
	"github.com/skosovsky/promptchain/chain"
	"github.com/skosovsky/promptchain/ext/otelchain"
	"github.com/skosovsky/promptchain/ext/promchain"
	"github.com/skosovsky/promptchain/internal/console"
	chainlog "github.com/skosovsky/promptchain/internal/log"
)

// app carries everything a command needs. It is built once per process in the root
// command's PersistentPreRunE and handed to every subcommand.
type app struct {
	cfg      config
	session  string
	logger   *slog.Logger
	model    promptchain.ChatModel
	prompts  promptSource
	out      *console.Printer
	in       io.Reader
	metrics  *promchain.Metrics
	callOpts []promptchain.CallOption
	closers  []func() error

	tracerProvider trace.TracerProvider
	span           trace.Span

	// newEmbedder is swapped in tests.
	newEmbedder func(config, *slog.Logger) (promptchain.Embedder, error)
}

func newApp(ctx context.Context, cfg config, in io.Reader, out, errOut io.Writer) (*app, error) {
	session := uuid.NewString()
	logger := chainlog.Setup(chainlog.Options{
		Verbose: cfg.Verbose,
		Quiet:   cfg.Quiet,
		JSON:    cfg.LogJSON,
		Writer:  errOut,
		Session: session,
	})
	a := &app{
		cfg:         cfg,
		session:     session,
		logger:      logger,
		out:         console.New(out, cfg.NoColor),
		in:          in,
		callOpts:    callOptions(cfg),
		newEmbedder: newEmbedder,
	}
	model, err := newChatModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.setupTracing(ctx); err != nil {
		return nil, err
	}
	model = otelchain.Wrap(model, otelchain.WithSystem(cfg.Provider), otelchain.WithTracerProvider(a.tracerProvider))
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		a.metrics = promchain.NewMetrics(reg)
		model = a.metrics.Wrap(model, cfg.Provider)
		if err := a.serveMetrics(reg); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.model = model

	prompts, closePrompts, err := openPrompts(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.prompts = prompts
	a.closers = append(a.closers, closePrompts)
	logger.Debug("app ready", "provider", cfg.Provider, "model", cfg.Model)
	return a, nil
}

// serveMetrics exposes reg on cfg.MetricsAddr until Close.
func (a *app) serveMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// template loads a prompt by name for the configured environment.
func (a *app) template(ctx context.Context, name string) (*promptchain.ChatPromptTemplate, error) {
	return a.prompts.GetTemplate(ctx, name, a.cfg.Env)
}

// modelStage returns a model stage using the template's model_config overridden by flags.
func (a *app) modelStage(tpl *promptchain.ChatPromptTemplate) *chain.ModelStage {
	return chain.Model(a.model, a.optionsFor(tpl)...)
}

func (a *app) optionsFor(tpl *promptchain.ChatPromptTemplate) []promptchain.CallOption {
	var opts []promptchain.CallOption
	if tpl != nil {
		opts = adapter.CallOptionsFromConfig(tpl.ModelConfig)
	}
	return append(opts, a.callOpts...)
}

// chainOptions returns the stage hooks every chain runs with: debug logging, events on
// the span active in ctx and, when enabled, Prometheus stage metrics.
func (a *app) chainOptions(ctx context.Context) []chain.Option {
	opts := []chain.Option{
		chain.WithLogger(a.logger),
		chain.WithStageHook(otelchain.StageHook(ctx)),
	}
	if a.metrics != nil {
		opts = append(opts, chain.WithStageHook(a.metrics.StageHook()))
	}
	return opts
}

// Close releases registries, stops the metrics server and flushes traces, last opened
// first.
func (a *app) Close() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
