package outputparser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/internal/cast"
)

// Format selects the serialization the model is asked to produce.
type Format int

// Supported output formats.
const (
	FormatJSON Format = iota
	FormatYAML
)

// String returns "json" or "yaml".
func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

var fencePattern = regexp.MustCompile("(?s)```[ \t]*([A-Za-z]*)[ \t]*\r?\n?(.*?)```")

// StructuredOption configures a StructuredParser.
type StructuredOption func(*StructuredParser)

// WithFormat sets the expected output format. Default is FormatJSON.
func WithFormat(f Format) StructuredOption {
	return func(p *StructuredParser) { p.format = f }
}

// StructuredParser extracts a record from model text and validates it against a schema.
// Parsed records are map[string]any with int64 integers, float64 numbers, []any arrays
// and map[string]any nested objects.
type StructuredParser struct {
	schema *Schema
	format Format
}

// Structured returns a parser for records matching schema.
func Structured(schema *Schema, opts ...StructuredOption) *StructuredParser {
	p := &StructuredParser{schema: schema}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Schema returns the schema the parser validates against.
func (p *StructuredParser) Schema() *Schema { return p.schema }

// Parse extracts, decodes and validates one record. Omitted optional fields with a
// default are filled in and optional fields set to null are dropped before validation.
// Every violated constraint is reported in one *promptchain.SchemaValidationError.
func (p *StructuredParser) Parse(_ context.Context, text string) (map[string]any, error) {
	var (
		record map[string]any
		err    error
	)
	if p.format == FormatYAML {
		record, err = decodeYAML(text)
	} else {
		record, err = decodeJSON(text)
	}
	if err != nil {
		return nil, err
	}
	doc := p.schema.doc
	dropNulls(record, doc)
	applyDefaults(record, doc)
	violations, err := p.schema.Validate(record)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, &promptchain.SchemaValidationError{Schema: p.schema.name, Violations: violations}
	}
	return cast.CoerceRecord(record, doc), nil
}

// Invoke parses resp.Text.
func (p *StructuredParser) Invoke(ctx context.Context, resp *promptchain.ModelResponse) (map[string]any, error) {
	return p.Parse(ctx, responseText(resp))
}

// FormatInstructions embeds the JSON Schema and asks for a single record.
func (p *StructuredParser) FormatInstructions() string {
	if p.format == FormatYAML {
		return "Respond with a single YAML mapping whose keys and values satisfy the JSON Schema below. " +
			"Return only the mapping, optionally inside a ```yaml code block, with no other text.\n\n" +
			"```json\n" + p.schema.JSON() + "\n```"
	}
	return "Respond with a single JSON object that satisfies the JSON Schema below. " +
		"Return only the object, optionally inside a ```json code block, with no other text. " +
		"The schema describes the object; do not repeat the schema itself.\n\n" +
		"```json\n" + p.schema.JSON() + "\n```"
}

// StageName implements chain.Named.
func (p *StructuredParser) StageName() string {
	if p.schema.name != "" {
		return "structured_parser:" + p.schema.name
	}
	return "structured_parser"
}

// extractJSON returns the object text: the body of a ```json (or unlabeled) fence when
// present, otherwise everything from the first '{' to the last '}'.
func extractJSON(text string) (string, bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		if lang == "" || lang == "json" {
			if body := strings.TrimSpace(m[2]); strings.HasPrefix(body, "{") {
				return body, true
			}
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func decodeJSON(text string) (map[string]any, error) {
	body, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found in %q", promptchain.ErrOutputParse, abbreviate(text))
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", promptchain.ErrOutputParse, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: JSON value is not an object", promptchain.ErrOutputParse)
	}
	return record, nil
}

func decodeYAML(text string) (map[string]any, error) {
	body := text
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if lang := strings.ToLower(m[1]); lang == "yaml" || lang == "yml" || lang == "" {
			body = m[2]
			break
		}
	}
	var record map[string]any
	if err := yaml.Unmarshal([]byte(body), &record); err != nil {
		return nil, fmt.Errorf("%w: invalid YAML: %w", promptchain.ErrOutputParse, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no YAML mapping found in %q", promptchain.ErrOutputParse, abbreviate(text))
	}
	return record, nil
}

func abbreviate(s string) string {
	const limit = 80
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}

func properties(doc map[string]any) map[string]any {
	props, _ := doc["properties"].(map[string]any)
	return props
}

func requiredSet(doc map[string]any) map[string]bool {
	list, _ := doc["required"].([]any)
	out := make(map[string]bool, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out[s] = true
		}
	}
	return out
}

// dropNulls removes optional properties explicitly set to null, recursively.
func dropNulls(record map[string]any, doc map[string]any) {
	props := properties(doc)
	required := requiredSet(doc)
	for name, v := range record {
		sub, _ := props[name].(map[string]any)
		if v == nil {
			if !required[name] {
				delete(record, name)
			}
			continue
		}
		if obj, ok := v.(map[string]any); ok && sub != nil {
			dropNulls(obj, sub)
		}
	}
}

// applyDefaults fills omitted properties that declare a default, recursively.
func applyDefaults(record map[string]any, doc map[string]any) {
	for name, raw := range properties(doc) {
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		v, present := record[name]
		if !present {
			if def, ok := sub["default"]; ok {
				record[name] = def
			}
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			applyDefaults(obj, sub)
		}
	}
}
