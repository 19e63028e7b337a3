package fake

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/skosovsky/promptchain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestModel_ScriptedReplies(t *testing.T) {
	t.Parallel()
	m := NewModel("one", "two")
	ctx := context.Background()
	for _, want := range []string{"one", "two", "two"} {
		resp, err := m.Generate(ctx, promptchain.UserPrompt("q"), promptchain.WithModel("x"))
		require.NoError(t, err)
		assert.Equal(t, want, resp.Text)
		assert.Equal(t, ModelName, resp.Model)
	}
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, "x", m.LastOptions().Model)
}

func TestModel_Echo(t *testing.T) {
	t.Parallel()
	m := NewModel()
	resp, err := m.Generate(context.Background(), promptchain.NewPromptValue(
		promptchain.ChatMessage{Role: promptchain.RoleSystem, Content: "sys"},
		promptchain.ChatMessage{Role: promptchain.RoleUser, Content: "hello there"},
	))
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, int64(2), resp.Usage.CompletionTokens)
}

func TestModel_Stream(t *testing.T) {
	t.Parallel()
	m := NewModel("a quick fox")
	var chunks []string
	for resp, err := range m.Stream(context.Background(), promptchain.UserPrompt("q")) {
		require.NoError(t, err)
		chunks = append(chunks, resp.Text)
	}
	assert.Equal(t, []string{"a ", "quick ", "fox"}, chunks)
	assert.Equal(t, "a quick fox", strings.Join(chunks, ""))
}

func TestModel_FailWith(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	m := NewModel("x").FailWith(boom)
	_, err := m.Generate(context.Background(), promptchain.UserPrompt("q"))
	require.ErrorIs(t, err, boom)
	for _, err := range m.Stream(context.Background(), promptchain.UserPrompt("q")) {
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 2, m.Calls())
}

func TestEmbedder(t *testing.T) {
	t.Parallel()
	e := &Embedder{Dim: 32}
	vecs, err := e.EmbedDocuments(context.Background(), []string{"Go channels", "go CHANNELS!", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 32)
	assert.Equal(t, vecs[0], vecs[1])
	for _, x := range vecs[2] {
		assert.Zero(t, x)
	}
}
