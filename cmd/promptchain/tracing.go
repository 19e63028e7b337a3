package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/skosovsky/promptchain/cmd/promptchain"

// newTracerProvider exports spans over OTLP/HTTP to endpoint, a full URL such as
// http://localhost:4318/v1/traces. The caller shuts it down.
func newTracerProvider(ctx context.Context, endpoint, session string) (*sdktrace.TracerProvider, error) {
	// otlptracehttp only logs a malformed URL and falls back to localhost.
	if u, err := url.Parse(endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("trace exporter: invalid endpoint %q", endpoint)
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", "promptchain"),
			attribute.String("service.version", Version),
			attribute.String("session.id", session),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// setupTracing picks the provider for model spans and command spans. Without an endpoint
// the global provider is used, which is a no-op unless the embedding program set one.
func (a *app) setupTracing(ctx context.Context) error {
	if a.cfg.TraceEndpoint == "" {
		a.tracerProvider = otel.GetTracerProvider()
		return nil
	}
	tp, err := newTracerProvider(ctx, a.cfg.TraceEndpoint, a.session)
	if err != nil {
		return err
	}
	a.tracerProvider = tp
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	a.logger.Debug("exporting traces", "endpoint", a.cfg.TraceEndpoint)
	return nil
}

// startCommand opens the root span of one command. Model spans and stage events created
// under the returned context nest beneath it.
func (a *app) startCommand(ctx context.Context, name string) context.Context {
	ctx, a.span = a.tracerProvider.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(
			attribute.String("promptchain.session", a.session),
			attribute.String("gen_ai.system", a.cfg.Provider),
		),
	)
	return ctx
}

// endCommand closes the command span, marking it failed when err is set.
func (a *app) endCommand(err error) {
	if a.span == nil {
		return
	}
	if err != nil {
		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, err.Error())
	}
	a.span.End()
	a.span = nil
}
