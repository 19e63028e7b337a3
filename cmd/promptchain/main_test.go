package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/internal/console"
	"github.com/skosovsky/promptchain/remoteregistry/git"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// readline installs a process-wide SIGWINCH watcher on first use.
		goleak.IgnoreAnyContainingPkg("github.com/chzyer/readline"),
	)
}

// run executes the CLI against the fake provider with colors off.
// Root commands share the default slog logger, so these tests do not run in parallel.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runRaw(t, stdin, append([]string{"--provider", "fake", "--no-color"}, args...)...)
}

func runRaw(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_Subcommands(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ask", "translate", "parse", "chat", "support", "rag", "prompts"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{keyProvider, keyModel, keyTemperature, keyMaxTokens, keyPromptsDir, keyPromptsURL, keyEnv, keyMetricsAddr, keyFakeResponse} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestAsk_Echo(t *testing.T) {
	out, err := run(t, "", "ask", "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "hello there\n", out)
}

func TestAsk_Verbose(t *testing.T) {
	out, err := run(t, "", "-v", "--fake-response", "Paris", "ask")
	require.NoError(t, err)
	assert.Equal(t, "Paris\nmodel: fake\ntokens: 7\n", out)
}

func TestAsk_Stream(t *testing.T) {
	out, err := run(t, "", "--fake-response", "one two three", "ask", "--stream")
	require.NoError(t, err)
	assert.Equal(t, "one two three\n", out)
}

func TestAsk_Batch(t *testing.T) {
	out, err := run(t, "", "ask", "--batch", "--concurrency", "2", "a?", "b?", "c?")
	require.NoError(t, err)
	assert.Equal(t, "Human: a?\nAI: a?\nHuman: b?\nAI: b?\nHuman: c?\nAI: c?\n", out)
}

func TestAsk_StreamAndBatchExclusive(t *testing.T) {
	_, err := run(t, "", "ask", "--stream", "--batch")
	require.Error(t, err)
}

func TestTranslate_Modes(t *testing.T) {
	tests := []struct {
		mode       string
		wantPrefix bool
	}{
		{modePlain, false},
		{modePipe, true},
		{modeSequence, true},
		{modeChat, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			out, err := run(t, "", "translate", "--mode", tt.mode, "--to", "fr", "Buen dia")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, strings.HasPrefix(out, translationPrefix), out)
			assert.Contains(t, out, "al fr: Buen dia")
		})
	}
}

func TestTranslate_UnknownMode(t *testing.T) {
	_, err := run(t, "", "translate", "--mode", "telepathy")
	require.ErrorContains(t, err, "unknown mode")
}

func TestTranslate_PromptsDir(t *testing.T) {
	dir := t.TempDir()
	manifest := "id: translator\nversion: \"2\"\nmessages:\n  - role: user\n    content: \"{text} -> {language2}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "translator.yaml"), []byte(manifest), 0o600))

	out, err := run(t, "", "--prompts-dir", dir, "translate", "--mode", modePlain, "gato")
	require.NoError(t, err)
	assert.Equal(t, "gato -> en\n", out)
}

func TestParse_List(t *testing.T) {
	out, err := run(t, "", "--fake-response", "pollo, pan rallado,  huevo ,", "parse", "list")
	require.NoError(t, err)
	assert.Equal(t, "- pollo\n- pan rallado\n- huevo\n", out)
}

func TestParse_String(t *testing.T) {
	out, err := run(t, "", "--fake-response", "Simón Bolívar", "parse", "string", "--var", "country=venezuela")
	require.NoError(t, err)
	assert.Equal(t, "Simón Bolívar\n", out)
}

func TestParse_Names(t *testing.T) {
	reply := "```json\n{\"nombre\": \"Juan\", \"apellido\": \"Cruz\", \"edad\": \"34\"}\n```"
	out, err := run(t, "", "--fake-response", reply, "parse", "names")
	require.NoError(t, err)
	assert.Contains(t, out, `"nombre": "Juan"`)
	assert.Contains(t, out, `"apellido": "Cruz"`)
}

func TestParse_Fixing(t *testing.T) {
	out, err := run(t, "", "--fake-response", `{"name": "Tom Hanks", "film_names": ["Forrest Gump"]}`, "parse", "fixing")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Tom Hanks"`)
	assert.Contains(t, out, `"Forrest Gump"`)
}

func TestParse_UnknownKind(t *testing.T) {
	_, err := run(t, "", "parse", "xml")
	require.ErrorContains(t, err, "unknown parser")
}

func TestChat_Conversation(t *testing.T) {
	out, err := run(t, "me llamo Ana\n\ncomo me llamo?\nsalir\nnever read\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Hola! Soy Alex")
	assert.Contains(t, out, "AI: me llamo Ana\n")
	assert.Contains(t, out, "Please type something to continue.\n")
	assert.Contains(t, out, "AI: como me llamo?\n")
	assert.NotContains(t, out, "never read")
}

func TestChat_Stream(t *testing.T) {
	out, err := run(t, "hola\n", "--fake-response", "  Hola, que tal?  ", "chat", "--stream")
	require.NoError(t, err)
	assert.Contains(t, out, "AI: Hola, que tal?\n")
}

func TestSupport(t *testing.T) {
	out, err := run(t, "no enciende\nFINALIZAR\n", "--fake-response", "Mantenga presionado el boton",
		"support", "--customer", "Juan Pérez", "--product", "Router", "--plan", "Premium")
	require.NoError(t, err)
	assert.Contains(t, out, "Sistema de Soporte Técnico TechCorp\n")
	assert.Contains(t, out, "Cliente: Juan Pérez\n")
	assert.Contains(t, out, "Producto: Router\n")
	assert.Contains(t, out, "Plan: Premium\n")
	assert.Contains(t, out, "AI: Mantenga presionado el boton\n")
}

func TestSupport_AsksForCustomer(t *testing.T) {
	out, err := run(t, "Ana\nno enciende\nfinalizar\n", "--fake-response", "Reinicie el equipo",
		"support", "--product", "Laptop", "--plan", "Enterprise")
	require.NoError(t, err)
	assert.Contains(t, out, "Cliente: Ana\n")
	assert.Contains(t, out, "AI: Reinicie el equipo\n")
}

func TestSupport_CanceledSelection(t *testing.T) {
	_, err := run(t, "", "support", "--customer", "Ana", "--plan", "Premium")
	require.ErrorIs(t, err, errCanceled)
}

func TestSupport_InvalidChoices(t *testing.T) {
	_, err := run(t, "", "support", "--customer", "Ana", "--product", "Tablet", "--plan", "Premium")
	require.ErrorContains(t, err, "unknown product")
	_, err = run(t, "", "support", "--customer", "Ana", "--product", "Router", "--plan", "Gold")
	require.ErrorContains(t, err, "unknown plan")
}

func TestConverse_TurnErrorContinues(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	a := &app{
		in:     strings.NewReader("boom\nok\nbye\n"),
		out:    console.New(&buf, true),
		logger: slog.New(slog.DiscardHandler),
	}
	calls := 0
	err := converse(context.Background(), a, "You", "bye", func(_ context.Context, input string) (string, error) {
		calls++
		if input == "boom" {
			return "", errors.New("model unavailable")
		}
		return "fine", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, buf.String(), "error: model unavailable\n")
	assert.Contains(t, buf.String(), "AI: fine\n")
}

func TestConverse_EOF(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	a := &app{in: strings.NewReader(""), out: console.New(&buf, true), logger: slog.New(slog.DiscardHandler)}
	err := converse(context.Background(), a, "You", "bye", func(context.Context, string) (string, error) {
		t.Fatal("no turn expected")
		return "", nil
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "You")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

const lcelPage = `<html><head><title>LCEL</title></head><body>
<h1>LangChain Expression Language</h1>
<p>LCEL composes runnables declaratively and supports streaming and batch.</p>
<p>Use LCEL for simple chains; prefer an agent framework for complex state.</p>
</body></html>`

func TestRAG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, lcelPage)
	}))
	defer srv.Close()

	out, err := run(t, "", "--fake-response", "Yes, for simple chains.",
		"rag", "--url", srv.URL, "--allow-http", "--chunk-size", "80", "--chunk-overlap", "10", "--k", "2", "--sources",
		"Should I use LCEL?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Yes, for simple chains.\n"), out)
	assert.Contains(t, out, "source 1: "+srv.URL)
	assert.Contains(t, out, "source 2: "+srv.URL)
	assert.NotContains(t, out, "source 3")
}

func TestRAG_RejectsPlainHTTP(t *testing.T) {
	_, err := run(t, "", "rag", "--url", "http://127.0.0.1:1/")
	require.Error(t, err)
}

func TestPrompts_List(t *testing.T) {
	out, err := run(t, "", "prompts", "list")
	require.NoError(t, err)
	names := strings.Fields(out)
	for _, want := range []string{"analyze_message", "analyze_profile", "conversational", "first_president", "ingredients", "rag_answer", "support", "translator", "translator_chat"} {
		assert.Contains(t, names, want)
	}
}

func TestPrompts_Show(t *testing.T) {
	out, err := run(t, "", "prompts", "show", "conversational")
	require.NoError(t, err)
	assert.Contains(t, out, "conversational\n")
	assert.Contains(t, out, "variables: chat_history, input\n")
	assert.Contains(t, out, "model_config temperature: 0.7\n")
	assert.Contains(t, out, "[history chat_history]\n")
	assert.Contains(t, out, "Human: {input}\n")

	_, err = run(t, "", "prompts", "show", "missing")
	require.ErrorIs(t, err, promptchain.ErrTemplateNotFound)
}

func TestMetricsServer(t *testing.T) {
	out, err := run(t, "", "--metrics-addr", "127.0.0.1:0", "ask", "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping\n", out)
}

func TestConfig_Errors(t *testing.T) {
	_, err := runRaw(t, "", "--provider", "skynet", "ask")
	require.ErrorIs(t, err, errUnknownProvider)

	_, err = run(t, "", "--prompts-dir", t.TempDir(), "--prompts-url", "https://example.com/prompts", "ask")
	require.ErrorContains(t, err, "mutually exclusive")

	_, err = run(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "ask")
	require.ErrorContains(t, err, "read config")
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptchain.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: ollama\ntemperature: 0.2\nmax-tokens: 64\nprompts-ttl: 1m\n"), 0o600))
	t.Setenv("PROMPTCHAIN_MODEL", "llama3")

	v := newViper()
	v.Set(keyConfig, path)
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, providerOllama, cfg.Provider)
	assert.Equal(t, "llama3", cfg.Model)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)
	assert.Equal(t, int64(64), cfg.MaxTokens)
	assert.Equal(t, "1m0s", cfg.PromptsTTL.String())
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, providerOpenAI, cfg.Provider)
	assert.Nil(t, cfg.Temperature)
	assert.Equal(t, "5m0s", cfg.PromptsTTL.String())
}

func TestCallOptions(t *testing.T) {
	t.Parallel()
	temp := 0.1
	got := promptchain.NewCallOptions(callOptions(config{Model: "gpt-4o-mini", Temperature: &temp, MaxTokens: 50})...)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.1, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, int64(50), *got.MaxTokens)

	assert.Empty(t, callOptions(config{}))
}

func TestNewFetcher_PicksTransport(t *testing.T) {
	t.Parallel()
	f, err := newFetcher(config{PromptsURL: "https://prompts.example.com/v1"}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.NotNil(t, f)

	for _, u := range []string{"git+file:///tmp/prompts", "https://git.example.com/prompts.git#prompts-v1"} {
		g, err := newFetcher(config{PromptsURL: u}, slog.New(slog.DiscardHandler))
		require.NoError(t, err, u)
		_, isGit := g.(*git.Fetcher)
		assert.True(t, isGit, u)
		require.NoError(t, g.(io.Closer).Close())
	}

	_, err = newFetcher(config{PromptsURL: "git+https://git.example.com/prompts#"}, slog.New(slog.DiscardHandler))
	require.Error(t, err, "empty tag")
}
