package promchain

import (
	"context"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
)

const namespace = "promptchain"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the collectors. Create one per registry.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stagesTotal     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Panics on duplicate
// registration, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_request_duration_seconds",
				Help:      "Duration of model calls in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"system", "model"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_requests_total",
				Help:      "Total number of model calls",
			},
			[]string{"system", "model", "mode", "status"}, // mode: generate, stream
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_tokens_total",
				Help:      "Total tokens reported by model calls",
			},
			[]string{"system", "model", "type"}, // type: input, output
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Histogram of chain stage duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Total number of chain stage runs",
			},
			[]string{"stage", "status"},
		),
	}
	reg.MustRegister(m.requestDuration, m.requestsTotal, m.tokensTotal, m.stageDuration, m.stagesTotal)
	return m
}

// StageHook returns a chain hook that counts and times every stage.
func (m *Metrics) StageHook() func(chain.StageEvent) {
	return func(ev chain.StageEvent) {
		status := statusSuccess
		if ev.Err != nil {
			status = statusError
		}
		m.stageDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
		m.stagesTotal.WithLabelValues(ev.Stage, status).Inc()
	}
}

// Wrap returns next instrumented under the system label (e.g. "openai").
func (m *Metrics) Wrap(next promptchain.ChatModel, system string) promptchain.ChatModel {
	return &model{next: next, metrics: m, system: system}
}

type model struct {
	next    promptchain.ChatModel
	metrics *Metrics
	system  string
}

func (m *model) observe(opts []promptchain.CallOption, mode string, start time.Time, resp *promptchain.ModelResponse, err error) {
	name := promptchain.NewCallOptions(opts...).Model
	if resp != nil && resp.Model != "" {
		name = resp.Model
	}
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.metrics.requestDuration.WithLabelValues(m.system, name).Observe(time.Since(start).Seconds())
	m.metrics.requestsTotal.WithLabelValues(m.system, name, mode, status).Inc()
	if err == nil && resp != nil {
		m.metrics.tokensTotal.WithLabelValues(m.system, name, "input").Add(float64(resp.Usage.PromptTokens))
		m.metrics.tokensTotal.WithLabelValues(m.system, name, "output").Add(float64(resp.Usage.CompletionTokens))
	}
}

func (m *model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	start := time.Now()
	resp, err := m.next.Generate(ctx, prompt, opts...)
	m.observe(opts, "generate", start, resp, err)
	return resp, err
}

func (m *model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		start := time.Now()
		var (
			last promptchain.ModelResponse
			err  error
		)
		defer func() { m.observe(opts, "stream", start, &last, err) }()
		for chunk, cerr := range m.next.Stream(ctx, prompt, opts...) {
			if cerr != nil {
				err = cerr
				yield(nil, cerr)
				return
			}
			if chunk.Model != "" {
				last.Model = chunk.Model
			}
			if chunk.Usage.TotalTokens > 0 || chunk.Usage.PromptTokens > 0 {
				last.Usage = chunk.Usage
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
