package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Global flags are bound to viper so each can also
// come from PROMPTCHAIN_<FLAG> or the --config file.
func newRootCmd() *cobra.Command {
	v := newViper()
	var a *app

	root := &cobra.Command{
		Use:   "promptchain",
		Short: "Compose prompt templates, models and output parsers into chains",
		Long: `promptchain runs prompt chains against OpenAI, DeepSeek, Anthropic, Gemini or
Ollama models: single questions and batches, translation pipelines, output parser
demos, conversational bots with memory and retrieval-augmented answers.

Prompts ship inside the binary; --prompts-dir or --prompts-url replace them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			cfg.FakeResponses, err = cmd.Flags().GetStringArray(keyFakeResponse)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(a.startCommand(cmd.Context(), cmd.CommandPath()))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String(keyConfig, "", "config file (yaml, json or toml)")
	pf.String(keyProvider, providerOpenAI, "model provider: openai, deepseek, anthropic, gemini, ollama or fake")
	pf.String(keyModel, "", "model name (provider default when empty)")
	pf.Float64(keyTemperature, 0, "sampling temperature (template or provider default when unset)")
	pf.Int64(keyMaxTokens, 0, "maximum completion tokens (0 keeps the template or provider default)")
	pf.String(keyPromptsDir, "", "load prompt manifests from this directory")
	pf.String(keyPromptsURL, "", "load prompt manifests from an HTTP base URL or a git repository")
	pf.String(keyPromptsToken, "", "bearer token for --prompts-url")
	pf.Duration(keyPromptsTTL, 5*time.Minute, "cache lifetime for remote prompts (0 never expires)")
	pf.String(keyEnv, "", "prompt environment, e.g. production")
	pf.BoolP(keyVerbose, "v", false, "enable verbose output")
	pf.BoolP(keyQuiet, "q", false, "suppress non-essential output")
	pf.Bool(keyNoColor, false, "disable colored output")
	pf.Bool(keyLogJSON, false, "write logs as JSON")
	pf.String(keyMetricsAddr, "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.String(keyTraceEndpoint, "", "export OpenTelemetry traces to this OTLP/HTTP URL, e.g. http://localhost:4318/v1/traces")
	pf.StringArray(keyFakeResponse, nil, "scripted reply for --provider fake (repeatable)")
	_ = v.BindPFlags(pf)

	// Subcommands read the app lazily: it exists only after PersistentPreRunE.
	get := appGetter(func() (*app, error) {
		if a == nil {
			return nil, errors.New("app not initialized")
		}
		return a, nil
	})
	root.AddCommand(
		newAskCmd(get),
		newTranslateCmd(get),
		newParseCmd(get),
		newChatCmd(get),
		newSupportCmd(get),
		newRAGCmd(get),
		newPromptsCmd(get),
	)
	return root
}

type appGetter func() (*app, error)

// run adapts a command body into a cobra RunE that receives the app, ends the command
// span and closes the app when the body returns.
func (get appGetter) run(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := get()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil {
				a.logger.Warn("close failed", "error", cerr)
			}
		}()
		err = fn(cmd, a, args)
		a.endCommand(err)
		return err
	}
}
