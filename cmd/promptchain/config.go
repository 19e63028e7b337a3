package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Flag and config keys shared by viper and cobra.
const (
	keyConfig        = "config"
	keyProvider      = "provider"
	keyModel         = "model"
	keyTemperature   = "temperature"
	keyMaxTokens     = "max-tokens"
	keyPromptsDir    = "prompts-dir"
	keyPromptsURL    = "prompts-url"
	keyPromptsTTL    = "prompts-ttl"
	keyPromptsToken  = "prompts-token"
	keyEnv           = "env"
	keyVerbose       = "verbose"
	keyQuiet         = "quiet"
	keyNoColor       = "no-color"
	keyLogJSON       = "log-json"
	keyMetricsAddr   = "metrics-addr"
	keyTraceEndpoint = "trace-endpoint"
	keyFakeResponse  = "fake-response"
)

// Providers accepted by --provider.
const (
	providerOpenAI    = "openai"
	providerDeepSeek  = "deepseek"
	providerAnthropic = "anthropic"
	providerGemini    = "gemini"
	providerOllama    = "ollama"
	providerFake      = "fake"
)

var providers = []string{providerOpenAI, providerDeepSeek, providerAnthropic, providerGemini, providerOllama, providerFake}

var errUnknownProvider = errors.New("unknown provider")

// config is the resolved CLI configuration: flags, then PROMPTCHAIN_* env vars, then
// the config file, then defaults.
type config struct {
	Provider      string
	Model         string
	Temperature   *float64
	MaxTokens     int64
	PromptsDir    string
	PromptsURL    string
	PromptsToken  string
	PromptsTTL    time.Duration
	Env           string
	Verbose       bool
	Quiet         bool
	NoColor       bool
	LogJSON       bool
	MetricsAddr   string
	TraceEndpoint string

	FakeResponses []string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PROMPTCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(keyProvider, providerOpenAI)
	v.SetDefault(keyPromptsTTL, 5*time.Minute)
	return v
}

// loadConfig reads the optional config file and resolves every key.
func loadConfig(v *viper.Viper) (config, error) {
	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := config{
		Provider:      strings.ToLower(strings.TrimSpace(v.GetString(keyProvider))),
		Model:         v.GetString(keyModel),
		MaxTokens:     v.GetInt64(keyMaxTokens),
		PromptsDir:    v.GetString(keyPromptsDir),
		PromptsURL:    v.GetString(keyPromptsURL),
		PromptsToken:  v.GetString(keyPromptsToken),
		PromptsTTL:    v.GetDuration(keyPromptsTTL),
		Env:           v.GetString(keyEnv),
		Verbose:       v.GetBool(keyVerbose),
		Quiet:         v.GetBool(keyQuiet),
		NoColor:       v.GetBool(keyNoColor),
		LogJSON:       v.GetBool(keyLogJSON),
		MetricsAddr:   v.GetString(keyMetricsAddr),
		TraceEndpoint: v.GetString(keyTraceEndpoint),
	}
	if v.IsSet(keyTemperature) {
		t := v.GetFloat64(keyTemperature)
		cfg.Temperature = &t
	}
	if !slices.Contains(providers, cfg.Provider) {
		return config{}, fmt.Errorf("%w %q (want one of %s)", errUnknownProvider, cfg.Provider, strings.Join(providers, ", "))
	}
	if cfg.PromptsDir != "" && cfg.PromptsURL != "" {
		return config{}, errors.New("--prompts-dir and --prompts-url are mutually exclusive")
	}
	return cfg, nil
}

