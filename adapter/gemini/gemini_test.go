package gemini

import (
	"context"
	"fmt"
	"math"
	"testing"

	"google.golang.org/genai"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ExampleAdapter_TranslateTyped() {
	a := New()
	req, _ := a.TranslateTyped(context.Background(), promptchain.UserPrompt("Hello"), promptchain.CallOptions{})
	fmt.Println(req.Model, req.Contents[0].Parts[0].Text)
	// Output: gemini-2.5-flash Hello
}

func TestTranslate_Conversation(t *testing.T) {
	t.Parallel()
	prompt := promptchain.NewPromptValue(
		promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "You are terse."},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "Hi"},
		promptchain.ChatMessage{Role: promptchain.RoleAssistant, Content: "Hey"},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "Bye"},
	)
	req, err := New().TranslateTyped(context.Background(), prompt, promptchain.CallOptions{})
	require.NoError(t, err)
	require.NotNil(t, req.Config.SystemInstruction)
	assert.Equal(t, "You are terse.", req.Config.SystemInstruction.Parts[0].Text)
	require.Len(t, req.Contents, 3)
	assert.Equal(t, genai.RoleUser, req.Contents[0].Role)
	assert.Equal(t, genai.RoleModel, req.Contents[1].Role)
	assert.Equal(t, "Hey", req.Contents[1].Parts[0].Text)
}

func TestTranslate_Options(t *testing.T) {
	t.Parallel()
	opts := promptchain.NewCallOptions(
		promptchain.WithModel("gemini-2.5-pro"),
		promptchain.WithTemperature(0.7),
		promptchain.WithMaxTokens(100),
		promptchain.WithTopP(0.9),
		promptchain.WithStop("END"),
	)
	req, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"), opts)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", req.Model)
	require.NotNil(t, req.Config.Temperature)
	assert.InDelta(t, 0.7, *req.Config.Temperature, 1e-6)
	assert.Equal(t, int32(100), req.Config.MaxOutputTokens)
	require.NotNil(t, req.Config.TopP)
	assert.InDelta(t, 0.9, *req.Config.TopP, 1e-6)
	assert.Equal(t, []string{"END"}, req.Config.StopSequences)
}

func TestTranslate_MaxTokensClamped(t *testing.T) {
	t.Parallel()
	req, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"),
		promptchain.NewCallOptions(promptchain.WithMaxTokens(math.MaxInt64)))
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), req.Config.MaxOutputTokens)
}

func TestTranslate_ResponseFormat(t *testing.T) {
	t.Parallel()
	def := &promptchain.SchemaDefinition{
		Name: "person",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string", "description": "Full name"},
				"age":  map[string]any{"type": "integer", "minimum": 0, "maximum": 150},
				"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"kind": map[string]any{"type": "string", "enum": []any{"a", "b"}},
			},
			"required": []any{"name", "age"},
		},
	}
	req, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"),
		promptchain.NewCallOptions(promptchain.WithResponseFormat(def)))
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Config.ResponseMIMEType)
	s := req.Config.ResponseSchema
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"name", "age"}, s.Required)
	assert.Equal(t, []string{"age", "kind", "name", "tags"}, s.PropertyOrdering)
	assert.Equal(t, "Full name", s.Properties["name"].Description)
	require.NotNil(t, s.Properties["age"].Maximum)
	assert.InDelta(t, 150.0, *s.Properties["age"].Maximum, 0)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"a", "b"}, s.Properties["kind"].Enum)
}

func TestTranslate_ResponseFormatUnsupportedType(t *testing.T) {
	t.Parallel()
	def := &promptchain.SchemaDefinition{Name: "bad", Schema: map[string]any{"type": "null"}}
	_, err := New().TranslateTyped(context.Background(), promptchain.UserPrompt("x"),
		promptchain.NewCallOptions(promptchain.WithResponseFormat(def)))
	require.ErrorIs(t, err, errUnsupportedType)
}

func TestTranslate_Errors(t *testing.T) {
	t.Parallel()
	a := New()
	ctx := context.Background()
	_, err := a.Translate(ctx, nil, promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrNilPrompt)
	_, err = a.Translate(ctx, promptchain.NewPromptValue(promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "x"}), promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrEmptyPrompt)
	_, err = a.Translate(ctx, promptchain.NewPromptValue(promptchain.ChatMessage{Role: "tool", Content: "x"}), promptchain.CallOptions{})
	require.ErrorIs(t, err, adapter.ErrUnsupportedRole)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	a := New()
	resp := &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.5-flash",
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: "Hello back"}}, Role: genai.RoleModel},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount: 4, CandidatesTokenCount: 2, TotalTokenCount: 6,
		},
	}
	out, err := a.ParseResponse(context.Background(), resp)
	require.NoError(t, err)
	assert.Equal(t, "Hello back", out.Text)
	assert.Equal(t, "STOP", out.FinishReason)
	assert.Equal(t, promptchain.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, out.Usage)
}

func TestParseResponse_Errors(t *testing.T) {
	t.Parallel()
	a := New()
	_, err := a.ParseResponse(context.Background(), "x")
	require.ErrorIs(t, err, adapter.ErrInvalidResponse)
	_, err = a.ParseResponse(context.Background(), &genai.GenerateContentResponse{})
	require.ErrorIs(t, err, adapter.ErrEmptyResponse)
}

func TestParseStreamChunk(t *testing.T) {
	t.Parallel()
	a := New()
	ctx := context.Background()
	out, err := a.ParseStreamChunk(ctx, &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hel"}}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hel", out.Text)

	out, err = a.ParseStreamChunk(ctx, &genai.GenerateContentResponse{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNewModel_MissingAPIKey(t *testing.T) {
	t.Parallel()
	_, err := NewModel(context.Background(), "")
	require.ErrorIs(t, err, adapter.ErrMissingAPIKey)
}
