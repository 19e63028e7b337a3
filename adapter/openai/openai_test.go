package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3"

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
	)
}

func ExampleAdapter_TranslateTyped() {
	a := New()
	params, _ := a.TranslateTyped(context.Background(), promptchain.UserPrompt("Hello"), promptchain.CallOptions{})
	fmt.Println(params.Model, params.Messages[0].OfUser.Content.OfString.Value)
	// Output: gpt-4o-mini Hello
}

func conversation() *promptchain.PromptValue {
	return promptchain.NewPromptValue(
		promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "Be brief."},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "Hi"},
		promptchain.ChatMessage{Role: promptchain.RoleAssistant, Content: "Hello!"},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "Bye"},
	)
}

func TestTranslate_Roles(t *testing.T) {
	t.Parallel()
	params, err := New().TranslateTyped(context.Background(), conversation(), promptchain.CallOptions{})
	require.NoError(t, err)
	require.Len(t, params.Messages, 4)
	assert.Equal(t, "Be brief.", params.Messages[0].OfSystem.Content.OfString.Value)
	assert.Equal(t, "Hi", params.Messages[1].OfUser.Content.OfString.Value)
	assert.Equal(t, "Hello!", params.Messages[2].OfAssistant.Content.OfString.Value)
	assert.Equal(t, "Bye", params.Messages[3].OfUser.Content.OfString.Value)
}

func TestTranslate_Options(t *testing.T) {
	t.Parallel()
	opts := promptchain.NewCallOptions(
		promptchain.WithModel("gpt-4o"),
		promptchain.WithTemperature(0.2),
		promptchain.WithMaxTokens(64),
		promptchain.WithTopP(0.9),
		promptchain.WithStop("END"),
	)
	params, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"), opts)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", params.Model)
	assert.InDelta(t, 0.2, params.Temperature.Value, 1e-9)
	assert.Equal(t, int64(64), params.MaxTokens.Value)
	assert.InDelta(t, 0.9, params.TopP.Value, 1e-9)
	assert.Equal(t, []string{"END"}, params.Stop.OfStringArray)
}

func TestTranslate_DefaultModelOption(t *testing.T) {
	t.Parallel()
	params, err := New(WithModel("gpt-4.1")).TranslateTyped(context.Background(), promptchain.UserPrompt("x"), promptchain.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", params.Model)

	_, err = New(WithModel("")).TranslateTyped(context.Background(), promptchain.UserPrompt("x"), promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrMissingModel)
}

func TestTranslate_ResponseFormat(t *testing.T) {
	t.Parallel()
	def := &promptchain.SchemaDefinition{
		Name:        "person",
		Description: "A person",
		Schema:      map[string]any{"type": "object"},
	}
	params, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"),
		promptchain.NewCallOptions(promptchain.WithResponseFormat(def)))
	require.NoError(t, err)
	require.NotNil(t, params.ResponseFormat.OfJSONSchema)
	assert.Equal(t, "person", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)
	assert.Equal(t, "A person", params.ResponseFormat.OfJSONSchema.JSONSchema.Description.Value)
}

func TestTranslate_Errors(t *testing.T) {
	t.Parallel()
	a := New()
	ctx := context.Background()
	_, err := a.Translate(ctx, nil, promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrNilPrompt)
	_, err = a.Translate(ctx, promptchain.NewPromptValue(), promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrEmptyPrompt)
	_, err = a.Translate(ctx, promptchain.NewPromptValue(promptchain.ChatMessage{Role: "tool", Content: "x"}), promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrUnsupportedRole)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	a := New()
	resp, err := a.ParseResponse(context.Background(), &openai.ChatCompletion{
		Model: "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hola"}, FinishReason: "stop"},
		},
		Usage: openai.CompletionUsage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hola", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, int64(6), resp.Usage.TotalTokens)

	_, err = a.ParseResponse(context.Background(), &openai.ChatCompletion{})
	require.ErrorIs(t, err, adapter.ErrEmptyResponse)
	_, err = a.ParseResponse(context.Background(), "nope")
	require.ErrorIs(t, err, adapter.ErrInvalidResponse)
}

func TestParseStreamChunk(t *testing.T) {
	t.Parallel()
	a := New()
	ctx := context.Background()
	resp, err := a.ParseStreamChunk(ctx, &openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{{Delta: openai.ChatCompletionChunkChoiceDelta{Content: "Ho"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ho", resp.Text)

	resp, err = a.ParseStreamChunk(ctx, &openai.ChatCompletionChunk{})
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = a.ParseStreamChunk(ctx, 42)
	require.ErrorIs(t, err, adapter.ErrInvalidResponse)
}

func TestNewModel_MissingAPIKey(t *testing.T) {
	t.Parallel()
	_, err := NewModel("")
	require.ErrorIs(t, err, adapter.ErrMissingAPIKey)
	_, err = NewEmbedder("")
	require.ErrorIs(t, err, adapter.ErrMissingAPIKey)
}

func testServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, []ClientOption) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, []ClientOption{WithBaseURL(srv.URL + "/"), WithHTTPClient(srv.Client()), WithMaxRetries(0)}
}

func TestModel_Generate(t *testing.T) {
	t.Parallel()
	_, opts := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hola"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	})
	m, err := NewModel("sk-test", opts...)
	require.NoError(t, err)
	resp, err := m.Generate(context.Background(), promptchain.UserPrompt("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "Hola", resp.Text)
	assert.Equal(t, int64(5), resp.Usage.PromptTokens)
}

func TestModel_GenerateProviderError(t *testing.T) {
	t.Parallel()
	_, opts := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	m, err := NewModel("sk-test", opts...)
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), promptchain.UserPrompt("Hello"))
	require.ErrorIs(t, err, adapter.ErrProviderCall)
}

func TestModel_Stream(t *testing.T) {
	t.Parallel()
	chunk := func(content string) string {
		return `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"` +
			content + `"},"finish_reason":null}]}` + "\n\n"
	}
	_, opts := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chunk("Ho"))
		_, _ = io.WriteString(w, chunk("la"))
		_, _ = io.WriteString(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],`+
			`"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`+"\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	m, err := NewModel("sk-test", opts...)
	require.NoError(t, err)
	var text strings.Builder
	var usage promptchain.Usage
	for resp, err := range m.Stream(context.Background(), promptchain.UserPrompt("Hello")) {
		require.NoError(t, err)
		text.WriteString(resp.Text)
		if resp.Usage.TotalTokens > 0 {
			usage = resp.Usage
		}
	}
	assert.Equal(t, "Hola", text.String())
	assert.Equal(t, int64(5), usage.TotalTokens)
}

func TestModel_StreamTranslateError(t *testing.T) {
	t.Parallel()
	m, err := NewModel("sk-test", WithMaxRetries(0))
	require.NoError(t, err)
	for _, err := range m.Stream(context.Background(), nil) {
		require.ErrorIs(t, err, adapter.ErrNilPrompt)
	}
}

func TestEmbedder(t *testing.T) {
	t.Parallel()
	_, opts := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose: results are placed by index.
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	})
	e, err := NewEmbedder("sk-test", opts...)
	require.NoError(t, err)
	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)

	empty, err := e.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewDeepSeek(t *testing.T) {
	t.Parallel()
	m, err := NewDeepSeek("sk-test")
	require.NoError(t, err)
	assert.Equal(t, DeepSeekModel, m.adapter.defaultModel)
}
