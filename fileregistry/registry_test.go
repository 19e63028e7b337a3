package fileregistry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptchain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const supportYAML = `id: support
version: "1"
model_config:
  temperature: 0.3
variables:
  partial:
    agent_name: "María González"
messages:
  - role: system
    content: "Eres {agent_name}. Cliente: {customer_name}."
  - placeholder: conversation_history
  - role: human
    content: "{current_issue}"
`

const supportProductionYAML = `id: support
version: "2"
variables:
  partial:
    agent_name: "Equipo de guardia"
messages:
  - role: system
    content: "Eres {agent_name}."
  - placeholder: conversation_history
    optional: true
  - role: human
    content: "{current_issue}"
`

const personYAML = `id: person
version: "1"
response_format:
  name: person
  schema:
    type: object
    properties:
      name: {type: string}
      age: {type: integer, minimum: 0, maximum: 120}
    required: [name, age]
messages:
  - role: system
    content: "Extract the person. {format_instructions}"
  - role: human
    content: "{text}"
`

// promptsDir writes the manifests a support bot and an extractor ship with.
func promptsDir(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"support.yaml":            supportYAML,
		"support.production.yaml": supportProductionYAML,
		"person.yml":              personYAML,
		"README.md":               "# prompts",
	}
	for name, content := range extra {
		files[name] = content
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestGetTemplate_PartialsAndHistorySlot(t *testing.T) {
	t.Parallel()
	reg := New(promptsDir(t, nil))
	tpl, err := reg.GetTemplate(context.Background(), "support", "")
	require.NoError(t, err)
	assert.Equal(t, "support", tpl.Metadata.ID)
	assert.Empty(t, tpl.Metadata.Environment)
	assert.Equal(t, "María González", tpl.PartialVariables["agent_name"])
	assert.InDelta(t, 0.3, tpl.ModelConfig["temperature"], 1e-9)
	assert.True(t, tpl.Messages[1].Placeholder)
	assert.ElementsMatch(t, []string{"customer_name", "conversation_history", "current_issue"}, tpl.InputVariables())

	pv, err := tpl.Format(context.Background(), promptchain.Values{
		"customer_name": "Juan",
		"conversation_history": []promptchain.ChatMessage{
			{Role: promptchain.RoleUser, Content: "no enciende"},
			{Role: promptchain.RoleAssistant, Content: "¿Está enchufado?"},
		},
		"current_issue": "sí, sigue sin encender",
	})
	require.NoError(t, err)
	msgs := pv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Eres María González. Cliente: Juan.", msgs[0].Content)
	assert.Equal(t, "¿Está enchufado?", msgs[2].Content)
	assert.Equal(t, promptchain.RoleUser, msgs[3].Role)
}

func TestGetTemplate_Environments(t *testing.T) {
	t.Parallel()
	reg := New(promptsDir(t, nil))
	ctx := context.Background()

	prod, err := reg.GetTemplate(ctx, "support", "production")
	require.NoError(t, err)
	assert.Equal(t, "2", prod.Metadata.Version)
	assert.Equal(t, "production", prod.Metadata.Environment)
	pv, err := prod.Format(ctx, promptchain.Values{"current_issue": "hola"})
	require.NoError(t, err, "optional history slot may stay unbound")
	assert.Equal(t, "Eres Equipo de guardia.", pv.Messages()[0].Content)
	assert.Len(t, pv.Messages(), 2)

	staging, err := reg.GetTemplate(ctx, "support", "staging")
	require.NoError(t, err)
	assert.Equal(t, "1", staging.Metadata.Version, "missing variant falls back to the base manifest")
	assert.Equal(t, "staging", staging.Metadata.Environment)
}

func TestGetTemplate_ResponseFormatFromYml(t *testing.T) {
	t.Parallel()
	tpl, err := New(promptsDir(t, nil)).GetTemplate(context.Background(), "person", "")
	require.NoError(t, err)
	require.NotNil(t, tpl.OutputSchema)
	assert.Equal(t, "person", tpl.OutputSchema.Name)
	assert.Equal(t, []any{"name", "age"}, tpl.OutputSchema.Schema["required"])
	assert.Contains(t, tpl.InputVariables(), "format_instructions")
}

func TestGetTemplate_ReturnsIndependentCopies(t *testing.T) {
	t.Parallel()
	reg := New(promptsDir(t, nil))
	ctx := context.Background()
	first, err := reg.GetTemplate(ctx, "support", "")
	require.NoError(t, err)
	first.PartialVariables["agent_name"] = "Otro"
	first.ModelConfig["temperature"] = 1.5
	first.Messages[0].Content = "cambiado"

	second, err := reg.GetTemplate(ctx, "support", "")
	require.NoError(t, err)
	assert.Equal(t, "María González", second.PartialVariables["agent_name"])
	assert.InDelta(t, 0.3, second.ModelConfig["temperature"], 1e-9)
	assert.Equal(t, "Eres {agent_name}. Cliente: {customer_name}.", second.Messages[0].Content)
}

func TestGetTemplate_Errors(t *testing.T) {
	t.Parallel()
	dir := promptsDir(t, map[string]string{
		"broken.yaml":          "id: broken\nmessages:\n  - placeholder: history\n    content: Hi\n",
		"support.staging.yaml": "id: support\nmessages: [",
	})
	reg := New(dir)
	ctx := context.Background()

	_, err := reg.GetTemplate(ctx, "broken", "")
	require.ErrorIs(t, err, promptchain.ErrInvalidManifest)
	assert.ErrorContains(t, err, filepath.Join(dir, "broken.yaml"))

	_, err = reg.GetTemplate(ctx, "support", "staging")
	require.Error(t, err, "a broken variant is reported, not skipped")

	_, err = reg.GetTemplate(ctx, "summary", "")
	require.ErrorIs(t, err, promptchain.ErrTemplateNotFound)

	_, err = reg.GetTemplate(ctx, "../support", "")
	require.ErrorIs(t, err, promptchain.ErrInvalidName)
	_, err = reg.GetTemplate(ctx, "support", "prod/eu")
	require.ErrorIs(t, err, promptchain.ErrInvalidName)
}

func TestList(t *testing.T) {
	t.Parallel()
	dir := promptsDir(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.yaml"), 0o700))
	names, err := New(dir).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "support"}, names)

	_, err = New(filepath.Join(dir, "missing")).List(context.Background())
	require.Error(t, err)
}

func TestReload_PicksUpEditedManifest(t *testing.T) {
	t.Parallel()
	dir := promptsDir(t, nil)
	reg := New(dir)
	ctx := context.Background()
	tpl, err := reg.GetTemplate(ctx, "person", "")
	require.NoError(t, err)
	assert.Equal(t, "1", tpl.Metadata.Version)

	edited := []byte("id: person\nversion: \"2\"\nmessages:\n  - role: human\n    content: \"{text}\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "person.yml"), edited, 0o600))
	tpl, err = reg.GetTemplate(ctx, "person", "")
	require.NoError(t, err)
	assert.Equal(t, "1", tpl.Metadata.Version, "cached until Reload")

	reg.Reload()
	tpl, err = reg.GetTemplate(ctx, "person", "")
	require.NoError(t, err)
	assert.Equal(t, "2", tpl.Metadata.Version)
	assert.Nil(t, tpl.OutputSchema)
}

func TestGetTemplate_ConcurrentWithReload(t *testing.T) {
	t.Parallel()
	reg := New(promptsDir(t, nil))
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Go(func() {
			if i%10 == 0 {
				reg.Reload()
				return
			}
			tpl, err := reg.GetTemplate(ctx, "support", "production")
			if assert.NoError(t, err) {
				assert.Equal(t, "production", tpl.Metadata.Environment)
			}
		})
	}
	wg.Wait()
}
