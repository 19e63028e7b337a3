package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter/anthropic"
	"github.com/skosovsky/promptchain/adapter/fake"
	"github.com/skosovsky/promptchain/adapter/gemini"
	"github.com/skosovsky/promptchain/adapter/ollama"
	"github.com/skosovsky/promptchain/adapter/openai"
)

// Credential environment variables, read once at startup.
const (
	envOpenAIKey    = "OPENAI_API_KEY"
	envDeepSeekKey  = "DEEPSEEK_API_KEY"
	envAnthropicKey = "ANTHROPIC_API_KEY"
	envGeminiKey    = "GEMINI_API_KEY"
	envOllamaHost   = "OLLAMA_HOST"
)

// newChatModel constructs the single model client shared by every command.
func newChatModel(ctx context.Context, cfg config, logger *slog.Logger) (promptchain.ChatModel, error) {
	switch cfg.Provider {
	case providerOpenAI:
		return orNil[promptchain.ChatModel](openai.NewModel(os.Getenv(envOpenAIKey), openai.WithLogger(logger)))
	case providerDeepSeek:
		return orNil[promptchain.ChatModel](openai.NewDeepSeek(os.Getenv(envDeepSeekKey), openai.WithLogger(logger)))
	case providerAnthropic:
		return orNil[promptchain.ChatModel](anthropic.NewModel(os.Getenv(envAnthropicKey), anthropic.WithLogger(logger)))
	case providerGemini:
		return orNil[promptchain.ChatModel](gemini.NewModel(ctx, os.Getenv(envGeminiKey), gemini.WithLogger(logger)))
	case providerOllama:
		return orNil[promptchain.ChatModel](ollama.NewModel(ollamaOptions(logger)...))
	case providerFake:
		return fake.NewModel(cfg.FakeResponses...), nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownProvider, cfg.Provider)
	}
}

// newEmbedder returns the embedder used by rag. DeepSeek, Anthropic and Gemini chat
// models are paired with OpenAI embeddings.
func newEmbedder(cfg config, logger *slog.Logger) (promptchain.Embedder, error) {
	switch cfg.Provider {
	case providerOllama:
		return orNil[promptchain.Embedder](ollama.NewEmbedder(ollamaOptions(logger)...))
	case providerFake:
		return &fake.Embedder{}, nil
	default:
		return orNil[promptchain.Embedder](openai.NewEmbedder(os.Getenv(envOpenAIKey), openai.WithLogger(logger)))
	}
}

// orNil converts a constructor result to interface type T without leaking a typed nil.
func orNil[T any, C any](c C, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	v, ok := any(c).(T)
	if !ok {
		return zero, fmt.Errorf("%T does not implement %T", c, (*T)(nil))
	}
	return v, nil
}

func ollamaOptions(logger *slog.Logger) []ollama.ClientOption {
	opts := []ollama.ClientOption{ollama.WithLogger(logger)}
	if host := os.Getenv(envOllamaHost); host != "" {
		opts = append(opts, ollama.WithHost(host))
	}
	return opts
}

// callOptions turns the global flags into per-call options. They are applied after a
// template's model_config, so flags win.
func callOptions(cfg config) []promptchain.CallOption {
	var opts []promptchain.CallOption
	if cfg.Model != "" {
		opts = append(opts, promptchain.WithModel(cfg.Model))
	}
	if cfg.Temperature != nil {
		opts = append(opts, promptchain.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, promptchain.WithMaxTokens(cfg.MaxTokens))
	}
	return opts
}
