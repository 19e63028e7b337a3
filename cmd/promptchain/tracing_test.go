package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/skosovsky/promptchain/chain"
)

func TestTrace_ExportsToEndpoint(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := run(t, "", "--trace-endpoint", srv.URL+"/v1/traces", "ask", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
	assert.Positive(t, posts.Load(), "spans are flushed when the command closes")
}

func TestTrace_BadEndpoint(t *testing.T) {
	_, err := run(t, "", "--trace-endpoint", "://nowhere", "ask", "hi")
	require.ErrorContains(t, err, "trace exporter")
}

func TestStartCommand_StageEventsNestUnderCommandSpan(t *testing.T) {
	t.Parallel()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	a := &app{
		cfg:            config{Provider: providerFake},
		session:        "s-1",
		logger:         slog.New(slog.DiscardHandler),
		tracerProvider: tp,
	}
	ctx := a.startCommand(context.Background(), "promptchain ask")
	upper := chain.Pipe(chain.Lambda(strings.TrimSpace), chain.Lambda(strings.ToUpper)).With(a.chainOptions(ctx)...)
	got, err := upper.Invoke(ctx, " hi ")
	require.NoError(t, err)
	assert.Equal(t, "HI", got)
	a.endCommand(errors.New("boom"))
	a.endCommand(nil)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "promptchain ask", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	var stages int
	for _, ev := range spans[0].Events {
		if ev.Name == "chain.stage" {
			stages++
		}
	}
	assert.Equal(t, 2, stages)
}
