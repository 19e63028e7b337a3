package outputparser

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptchain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStringParser(t *testing.T) {
	t.Parallel()
	p := String()
	got, err := p.Invoke(context.Background(), &promptchain.ModelResponse{Text: "\n  Hola mundo \t\n"})
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", got)

	got, err = p.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, p.FormatInstructions())
}

func chunkSeq(chunks ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestStringParser_Transform(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		chunks []string
	}{
		{"words", []string{"Hello ", "big ", "world"}},
		{"leading and trailing space", []string{"  ", "\nHello", " ", " world ", "\n"}},
		{"only space", []string{" ", "\t"}},
		{"single", []string{"  x  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out []string
			for s, err := range String().Transform(context.Background(), chunkSeq(tt.chunks...)) {
				require.NoError(t, err)
				out = append(out, s)
			}
			assert.Equal(t, strings.TrimSpace(strings.Join(tt.chunks, "")), strings.Join(out, ""))
		})
	}
}

func TestStringParser_TransformError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	src := func(yield func(string, error) bool) {
		if !yield("a", nil) {
			return
		}
		yield("", boom)
	}
	var gotErr error
	for _, err := range String().Transform(context.Background(), src) {
		if err != nil {
			gotErr = err
		}
	}
	require.ErrorIs(t, gotErr, boom)
}

func TestCommaSeparatedList(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"basic", "red, green , blue", []string{"red", "green", "blue"}},
		{"empty", "", []string{}},
		{"only commas", " , ,", []string{}},
		{"single", "one", []string{"one"}},
		{"trailing comma", "a, b,", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CommaSeparatedList().Parse(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Contains(t, CommaSeparatedList().FormatInstructions(), "comma-separated")
}

func personSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		StringField("name").Required(),
		IntegerField("age").Range(0, 120).Required(),
	)
	require.NoError(t, err)
	return s
}

func TestStructured_PersonExample(t *testing.T) {
	t.Parallel()
	p := Structured(personSchema(t))
	ctx := context.Background()

	got, err := p.Parse(ctx, `{"name":"Ana","age":30}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ana", "age": int64(30)}, got)

	_, err = p.Parse(ctx, `{"name":"Ana","age":130}`)
	require.ErrorIs(t, err, promptchain.ErrSchemaValidation)
	var sve *promptchain.SchemaValidationError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, []string{"age"}, sve.Fields())

	_, err = p.Parse(ctx, `{"age":"old"}`)
	require.ErrorAs(t, err, &sve)
	assert.ElementsMatch(t, []string{"name", "age"}, sve.Fields())
}

func TestStructured_Extraction(t *testing.T) {
	t.Parallel()
	p := Structured(personSchema(t))
	tests := []struct {
		name string
		text string
	}{
		{"fenced", "Sure!\n```json\n{\"name\": \"Ana\", \"age\": 30}\n```\nAnything else?"},
		{"unlabeled fence", "```\n{\"name\": \"Ana\", \"age\": 30}\n```"},
		{"embedded", "Here you go: {\"name\": \"Ana\", \"age\": 30} Thanks."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.Parse(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, "Ana", got["name"])
			assert.Equal(t, int64(30), got["age"])
		})
	}
}

func TestStructured_OutputParseErrors(t *testing.T) {
	t.Parallel()
	p := Structured(personSchema(t))
	for _, text := range []string{"no object here", "{name: Ana,}", "} backwards {"} {
		_, err := p.Parse(context.Background(), text)
		require.ErrorIs(t, err, promptchain.ErrOutputParse, text)
		assert.NotErrorIs(t, err, promptchain.ErrSchemaValidation)
	}
}

func TestStructured_RichSchema(t *testing.T) {
	t.Parallel()
	s, err := NewSchema(
		StringField("title").Required().MinLen(1).MaxLen(40),
		StringField("genre").Enum("action", "comedy", "drama").Required(),
		NumberField("rating").Range(0, 10),
		IntegerField("year").Min(1888).Default(2000),
		BooleanField("sequel").Default(false),
		StringField("notes"),
		ArrayField("tags", StringField("")).MinItems(1).MaxItems(3),
		ObjectField("director",
			StringField("name").Required(),
			IntegerField("awards").Default(0),
		),
	)
	require.NoError(t, err)
	p := Structured(s)
	ctx := context.Background()

	got, err := p.Parse(ctx, `{"title":"Up","genre":"comedy","rating":8.5,"notes":null,
		"tags":["family","pixar"],"director":{"name":"Pete"}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got["year"])
	assert.Equal(t, false, got["sequel"])
	assert.InDelta(t, 8.5, got["rating"], 1e-9)
	assert.NotContains(t, got, "notes")
	assert.Equal(t, []any{"family", "pixar"}, got["tags"])
	assert.Equal(t, map[string]any{"name": "Pete", "awards": int64(0)}, got["director"])

	_, err = p.Parse(ctx, `{"title":"","genre":"horror","year":1500,"tags":[],"director":{}}`)
	var sve *promptchain.SchemaValidationError
	require.ErrorAs(t, err, &sve)
	assert.ElementsMatch(t, []string{"title", "genre", "year", "tags", "director.name"}, sve.Fields())
}

func TestStructured_YAML(t *testing.T) {
	t.Parallel()
	p := Structured(personSchema(t), WithFormat(FormatYAML))
	got, err := p.Parse(context.Background(), "```yaml\nname: Ana\nage: 30\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ana", "age": int64(30)}, got)

	_, err = p.Parse(context.Background(), "just words")
	require.ErrorIs(t, err, promptchain.ErrOutputParse)
	assert.Contains(t, p.FormatInstructions(), "YAML")
	assert.Equal(t, "yaml", FormatYAML.String())
}

func TestStructured_FormatInstructions(t *testing.T) {
	t.Parallel()
	p := Structured(personSchema(t))
	instr := p.FormatInstructions()
	assert.Contains(t, instr, "JSON Schema")
	assert.Contains(t, instr, `"maximum": 120`)
	assert.Contains(t, instr, `"required"`)
}

func TestNewSchema_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields []Field
	}{
		{"no name", []Field{StringField("")}},
		{"duplicate", []Field{StringField("a"), IntegerField("a")}},
		{"inverted range", []Field{IntegerField("a").Range(10, 1)}},
		{"inverted length", []Field{StringField("a").MinLen(5).MaxLen(1)}},
		{"nested duplicate", []Field{ObjectField("o", StringField("x"), StringField("x"))}},
		{"zero field", []Field{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSchema(tt.fields...)
			require.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
	assert.Panics(t, func() { MustSchema(StringField("")) })
}

func TestSchemaFromDefinition(t *testing.T) {
	t.Parallel()
	def := &promptchain.SchemaDefinition{
		Name:        "ticket",
		Description: "Support ticket",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"priority": map[string]any{"type": "string", "enum": []any{"low", "high"}},
				"summary":  map[string]any{"type": "string"},
			},
			"required": []any{"priority", "summary"},
		},
	}
	s, err := SchemaFromDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, "ticket", s.Name())
	assert.Equal(t, "Support ticket", s.Document()["description"])
	assert.Equal(t, "ticket", s.Definition().Name)

	_, err = Structured(s).Parse(context.Background(), `{"priority":"urgent","summary":"x"}`)
	var sve *promptchain.SchemaValidationError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, "ticket", sve.Schema)

	_, err = SchemaFromDefinition(nil)
	require.ErrorIs(t, err, ErrInvalidSchema)
	_, err = SchemaFromDefinition(&promptchain.SchemaDefinition{Schema: map[string]any{"type": 5}})
	require.ErrorIs(t, err, ErrInvalidSchema)
}

func TestFromNamesAndDescriptions(t *testing.T) {
	t.Parallel()
	s, err := FromNamesAndDescriptions(map[string]string{
		"answer": "answer to the user's question",
		"source": "source used to answer the user's question, should be a website.",
	})
	require.NoError(t, err)
	p := Structured(s)
	got, err := p.Parse(context.Background(), "```json\n{\"answer\": \"Paris\", \"source\": \"https://en.wikipedia.org\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Paris", got["answer"])

	_, err = p.Parse(context.Background(), `{"answer": "Paris"}`)
	require.ErrorIs(t, err, promptchain.ErrSchemaValidation)
	assert.Contains(t, p.FormatInstructions(), "source used to answer")
}

type movie struct {
	Title  string   `json:"title" jsonschema:"description=Movie title"`
	Year   int      `json:"year" jsonschema:"minimum=1888"`
	Genres []string `json:"genres,omitempty"`
	Rating float64  `json:"rating,omitempty" jsonschema:"minimum=0,maximum=10"`
}

func TestTyped(t *testing.T) {
	t.Parallel()
	p, err := Typed[movie]()
	require.NoError(t, err)
	ctx := context.Background()

	got, err := p.Invoke(ctx, &promptchain.ModelResponse{Text: `{"title":"Alien","year":1979,"genres":["horror","sci-fi"]}`})
	require.NoError(t, err)
	assert.Equal(t, movie{Title: "Alien", Year: 1979, Genres: []string{"horror", "sci-fi"}}, got)

	_, err = p.Parse(ctx, `{"title":"Alien","year":1800}`)
	require.ErrorIs(t, err, promptchain.ErrSchemaValidation)
	_, err = p.Parse(ctx, `{"year":1979}`)
	require.ErrorIs(t, err, promptchain.ErrSchemaValidation)

	doc := p.Schema().Document()
	assert.NotContains(t, doc, "$schema")
	assert.NotContains(t, doc, "$id")
	assert.Contains(t, p.FormatInstructions(), "Movie title")
}

func TestSchemaFor_NotStruct(t *testing.T) {
	t.Parallel()
	_, err := SchemaFor[[]string]()
	require.ErrorIs(t, err, ErrInvalidSchema)
}

type recordingCorrector struct {
	reply string
	err   error
	calls []string
}

func (r *recordingCorrector) Correct(_ context.Context, instructions, completion string, cause error) (string, error) {
	r.calls = append(r.calls, completion)
	if instructions == "" || cause == nil {
		return "", errors.New("corrector called without context")
	}
	return r.reply, r.err
}

func TestFixing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid input needs no correction", func(t *testing.T) {
		t.Parallel()
		c := &recordingCorrector{}
		got, err := Fixing(Structured(personSchema(t)), c).Parse(ctx, `{"name":"Ana","age":30}`)
		require.NoError(t, err)
		assert.Equal(t, "Ana", got["name"])
		assert.Empty(t, c.calls)
	})

	t.Run("one correction round trip", func(t *testing.T) {
		t.Parallel()
		c := &recordingCorrector{reply: `{"name":"Ana","age":30}`}
		got, err := Fixing(Structured(personSchema(t)), c).Parse(ctx, `{'name': 'Ana', age: thirty}`)
		require.NoError(t, err)
		assert.Equal(t, int64(30), got["age"])
		assert.Equal(t, []string{`{'name': 'Ana', age: thirty}`}, c.calls)
	})

	t.Run("retry failure returns original error", func(t *testing.T) {
		t.Parallel()
		c := &recordingCorrector{reply: `{"name":"Ana","age":999}`}
		_, err := Fixing(Structured(personSchema(t)), c).Parse(ctx, "no json at all")
		require.ErrorIs(t, err, promptchain.ErrOutputParse)
		assert.NotErrorIs(t, err, promptchain.ErrSchemaValidation)
		assert.Len(t, c.calls, 1)
	})

	t.Run("corrector failure is returned", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("provider down")
		c := &recordingCorrector{err: boom}
		_, err := Fixing(Structured(personSchema(t)), c).Parse(ctx, `{"name":"Ana"}`)
		require.ErrorIs(t, err, boom)
	})

	t.Run("other errors are not repaired", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		var failing Parser[string] = failingParser{err: boom}
		c := &recordingCorrector{reply: "x"}
		_, err := Fixing(failing, c).Parse(ctx, "x")
		require.ErrorIs(t, err, boom)
		assert.Empty(t, c.calls)
	})
}

type failingParser struct{ err error }

func (f failingParser) Parse(context.Context, string) (string, error) { return "", f.err }
func (f failingParser) Invoke(ctx context.Context, r *promptchain.ModelResponse) (string, error) {
	return f.Parse(ctx, responseText(r))
}
func (failingParser) FormatInstructions() string { return "" }

func TestFixPromptVariables(t *testing.T) {
	t.Parallel()
	vars := fixPrompt.InputVariables()
	slices.Sort(vars)
	assert.Equal(t, []string{"completion", "error", "instructions"}, vars)
}
