package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func ExampleAdapter_TranslateTyped() {
	a := New()
	params, _ := a.TranslateTyped(context.Background(), promptchain.UserPrompt("Hello"), promptchain.CallOptions{})
	fmt.Println(params.Messages[0].Content[0].OfText.Text)
	// Output: Hello
}

func TestTranslate_TextOnly(t *testing.T) {
	t.Parallel()
	params, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("Hello"), promptchain.CallOptions{})
	require.NoError(t, err)
	require.Len(t, params.Messages, 1)
	require.Len(t, params.Messages[0].Content, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, "Hello", params.Messages[0].Content[0].OfText.Text)
	assert.Equal(t, defaultMaxTokens, params.MaxTokens)
	assert.Equal(t, DefaultModel, params.Model)
}

func TestTranslate_SystemMessages(t *testing.T) {
	t.Parallel()
	prompt := promptchain.NewPromptValue(
		promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "You are a helper."},
		promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "Answer in French."},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "Hi"},
		promptchain.ChatMessage{Role: promptchain.RoleAssistant, Content: "Salut"},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "Bye"},
	)
	params, err := New().TranslateTyped(context.Background(), prompt, promptchain.CallOptions{})
	require.NoError(t, err)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You are a helper.\n\nAnswer in French.", params.System[0].Text)
	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Equal(t, "Salut", params.Messages[1].Content[0].OfText.Text)
}

func TestTranslate_Options(t *testing.T) {
	t.Parallel()
	opts := promptchain.NewCallOptions(
		promptchain.WithModel("claude-3-5-haiku-latest"),
		promptchain.WithTemperature(0.5),
		promptchain.WithMaxTokens(2048),
		promptchain.WithTopP(0.8),
		promptchain.WithStop("\n\nHuman:"),
	)
	params, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"), opts)
	require.NoError(t, err)
	assert.Equal(t, anthropic.Model("claude-3-5-haiku-latest"), params.Model)
	assert.Equal(t, int64(2048), params.MaxTokens)
	assert.InDelta(t, 0.5, params.Temperature.Value, 1e-9)
	assert.InDelta(t, 0.8, params.TopP.Value, 1e-9)
	assert.Equal(t, []string{"\n\nHuman:"}, params.StopSequences)
}

func TestTranslate_Errors(t *testing.T) {
	t.Parallel()
	a := New()
	ctx := context.Background()
	tests := []struct {
		name   string
		prompt *promptchain.PromptValue
		want   error
	}{
		{"nil", nil, adapter.ErrNilPrompt},
		{"empty", promptchain.NewPromptValue(), adapter.ErrEmptyPrompt},
		{"system only", promptchain.NewPromptValue(promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "x"}), adapter.ErrEmptyPrompt},
		{"unknown role", promptchain.NewPromptValue(promptchain.ChatMessage{Role: "tool", Content: "x"}), adapter.ErrUnsupportedRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := a.Translate(ctx, tt.prompt, promptchain.CallOptions{})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	a := New()
	msg := &anthropic.Message{
		Model: "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Hello, "},
			{Type: "thinking"},
			{Type: "text", Text: "world"},
		},
		StopReason: anthropic.StopReasonEndTurn,
		Usage:      anthropic.Usage{InputTokens: 10, OutputTokens: 4},
	}
	resp, err := a.ParseResponse(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, promptchain.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14}, resp.Usage)
}

func TestParseResponse_Errors(t *testing.T) {
	t.Parallel()
	a := New()
	_, err := a.ParseResponse(context.Background(), &anthropic.Message{Content: []anthropic.ContentBlockUnion{}})
	require.ErrorIs(t, err, adapter.ErrEmptyResponse)
	_, err = a.ParseResponse(context.Background(), "not a message")
	require.ErrorIs(t, err, adapter.ErrInvalidResponse)
}

func TestParseStreamChunk(t *testing.T) {
	t.Parallel()
	a := New()
	ctx := context.Background()
	event := func(raw string) *anthropic.MessageStreamEventUnion {
		var ev anthropic.MessageStreamEventUnion
		require.NoError(t, json.Unmarshal([]byte(raw), &ev))
		return &ev
	}

	resp, err := a.ParseStreamChunk(ctx, event(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Hi", resp.Text)

	resp, err = a.ParseStreamChunk(ctx, event(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`))
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, int64(7), resp.Usage.CompletionTokens)

	resp, err = a.ParseStreamChunk(ctx, event(`{"type":"content_block_stop","index":0}`))
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = a.ParseStreamChunk(ctx, "x")
	require.ErrorIs(t, err, adapter.ErrInvalidResponse)
}

func TestNewModel_MissingAPIKey(t *testing.T) {
	t.Parallel()
	_, err := NewModel("")
	require.ErrorIs(t, err, adapter.ErrMissingAPIKey)
}

func newTestModel(t *testing.T, h http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m, err := NewModel("test-key", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()), WithMaxRetries(0))
	require.NoError(t, err)
	return m
}

func TestModel_Generate(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929",
			"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":5}}`)
	})
	prompt := promptchain.NewPromptValue(
		promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "Be kind."},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "hi"},
	)
	resp, err := m.Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, int64(15), resp.Usage.TotalTokens)
	assert.Equal(t, string(DefaultModel), captured["model"])
	assert.InDelta(t, float64(defaultMaxTokens), captured["max_tokens"], 0)
}

func TestModel_GenerateProviderError(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	})
	_, err := m.Generate(context.Background(), promptchain.UserPrompt("hi"))
	require.ErrorIs(t, err, adapter.ErrProviderCall)
}

func TestModel_Stream(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5-20250929","stop_reason":null,"usage":{"input_tokens":3,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	})
	var text strings.Builder
	var finish string
	for resp, err := range m.Stream(context.Background(), promptchain.UserPrompt("hi")) {
		require.NoError(t, err)
		text.WriteString(resp.Text)
		if resp.FinishReason != "" {
			finish = resp.FinishReason
		}
	}
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, "end_turn", finish)
}
