// Package promchain exports Prometheus metrics for promptchain model calls and chain stages.
//
//	metrics := promchain.NewMetrics(prometheus.DefaultRegisterer)
//	model := metrics.Wrap(openaiModel, "openai")
//	c := chain.Pipe3(prompt, chain.Model(model), parser).With(chain.WithStageHook(metrics.StageHook()))
package promchain
