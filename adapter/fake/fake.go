// Package fake provides a scripted, deterministic ChatModel and Embedder for tests and
// offline demos.
package fake

import (
	"context"
	"hash/fnv"
	"iter"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/skosovsky/promptchain"
)

var (
	_ promptchain.ChatModel = (*Model)(nil)
	_ promptchain.Embedder  = (*Embedder)(nil)
)

// ModelName is reported in every response.
const ModelName = "fake"

// Model replies with scripted responses in order, repeating the last one when the script
// runs out. With an empty script it echoes the content of the last prompt message.
// Every call is recorded. Model is safe for concurrent use.
type Model struct {
	mu        sync.Mutex
	responses []string
	next      int
	err       error
	prompts   []*promptchain.PromptValue
	options   []promptchain.CallOptions
}

// NewModel returns a model replying with responses.
func NewModel(responses ...string) *Model {
	return &Model{responses: append([]string(nil), responses...)}
}

// FailWith makes every following call return err.
func (m *Model) FailWith(err error) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Generate returns the next scripted reply.
func (m *Model) Generate(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) (*promptchain.ModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := m.reply(prompt, promptchain.NewCallOptions(opts...))
	if err != nil {
		return nil, err
	}
	return &promptchain.ModelResponse{
		Text:         text,
		Model:        ModelName,
		FinishReason: "stop",
		Usage:        usage(prompt, text),
	}, nil
}

// Stream yields the next scripted reply word by word, keeping the separating spaces.
func (m *Model) Stream(ctx context.Context, prompt *promptchain.PromptValue, opts ...promptchain.CallOption) iter.Seq2[*promptchain.ModelResponse, error] {
	return func(yield func(*promptchain.ModelResponse, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		text, err := m.reply(prompt, promptchain.NewCallOptions(opts...))
		if err != nil {
			yield(nil, err)
			return
		}
		for _, chunk := range strings.SplitAfter(text, " ") {
			if chunk == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&promptchain.ModelResponse{Text: chunk, Model: ModelName}, nil) {
				return
			}
		}
	}
}

// Prompts returns every prompt received so far.
func (m *Model) Prompts() []*promptchain.PromptValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*promptchain.PromptValue(nil), m.prompts...)
}

// Calls returns the number of calls received.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// LastOptions returns the call options of the latest call.
func (m *Model) LastOptions() promptchain.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.options) == 0 {
		return promptchain.CallOptions{}
	}
	return m.options[len(m.options)-1]
}

func (m *Model) reply(prompt *promptchain.PromptValue, opts promptchain.CallOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, opts)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		msgs := prompt.Messages()
		if len(msgs) == 0 {
			return "", nil
		}
		return msgs[len(msgs)-1].Content, nil
	}
	i := min(m.next, len(m.responses)-1)
	m.next++
	return m.responses[i], nil
}

func usage(prompt *promptchain.PromptValue, text string) promptchain.Usage {
	in := int64(len(strings.Fields(prompt.String())))
	out := int64(len(strings.Fields(text)))
	return promptchain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}

// Embedder hashes lower-cased words into a fixed number of buckets and L2-normalizes the
// result, so texts sharing words have a positive cosine similarity.
type Embedder struct {
	Dim int // zero means 64
}

// EmbedDocuments embeds every text.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
