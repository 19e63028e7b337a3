package outputparser

import (
	"context"
	"iter"
	"strings"
	"unicode"

	"github.com/skosovsky/promptchain"
)

// StringParser returns the model text with surrounding whitespace removed.
type StringParser struct{}

// String returns the plain-text parser.
func String() StringParser { return StringParser{} }

// Parse trims surrounding whitespace.
func (StringParser) Parse(_ context.Context, text string) (string, error) {
	return strings.TrimSpace(text), nil
}

// Invoke parses resp.Text.
func (p StringParser) Invoke(ctx context.Context, resp *promptchain.ModelResponse) (string, error) {
	return p.Parse(ctx, responseText(resp))
}

// FormatInstructions is empty: any text is accepted.
func (StringParser) FormatInstructions() string { return "" }

// StageName implements chain.Named.
func (StringParser) StageName() string { return "string_parser" }

// Transform parses a stream chunk by chunk. Leading whitespace is dropped and trailing
// whitespace is held back until more text arrives, so the concatenated output equals
// Parse of the concatenated input. Errors from chunks are passed through unchanged.
func (StringParser) Transform(_ context.Context, chunks iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		started := false
		pending := ""
		for chunk, err := range chunks {
			if err != nil {
				yield("", err)
				return
			}
			if !started {
				chunk = strings.TrimLeftFunc(chunk, unicode.IsSpace)
				if chunk == "" {
					continue
				}
				started = true
			}
			body := strings.TrimRightFunc(chunk, unicode.IsSpace)
			if body == "" {
				pending += chunk
				continue
			}
			out := pending + body
			pending = chunk[len(body):]
			if !yield(out, nil) {
				return
			}
		}
	}
}

// ListParser splits model text on commas.
type ListParser struct{}

// CommaSeparatedList returns the delimited-list parser.
func CommaSeparatedList() ListParser { return ListParser{} }

// Parse splits on ',', trims every item and drops empty ones. Empty text yields an empty slice.
func (ListParser) Parse(_ context.Context, text string) ([]string, error) {
	out := []string{}
	for item := range strings.SplitSeq(text, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// Invoke parses resp.Text.
func (p ListParser) Invoke(ctx context.Context, resp *promptchain.ModelResponse) ([]string, error) {
	return p.Parse(ctx, responseText(resp))
}

// FormatInstructions asks for a comma-separated list.
func (ListParser) FormatInstructions() string {
	return "Respond with a list of comma-separated values and nothing else, for example: `foo, bar, baz`."
}

// StageName implements chain.Named.
func (ListParser) StageName() string { return "list_parser" }
