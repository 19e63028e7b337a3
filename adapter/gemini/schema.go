package gemini

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/genai"

	"github.com/skosovsky/promptchain/internal/cast"
)

var errUnsupportedType = errors.New("unsupported JSON Schema type")

// toGenaiSchema converts a JSON Schema document to genai.Schema. Only the subset Gemini
// understands is mapped: type, description, enum, format, bounds, properties, required
// and items. Nested objects and arrays are converted recursively.
func toGenaiSchema(m map[string]any) (*genai.Schema, error) {
	if m == nil {
		return nil, nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok && t != "" {
		gt, err := genaiType(t)
		if err != nil {
			return nil, err
		}
		s.Type = gt
	}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	if f, ok := m["format"].(string); ok {
		s.Format = f
	}
	if p, ok := m["pattern"].(string); ok {
		s.Pattern = p
	}
	if v, ok := cast.ToFloat64(m["minimum"]); ok {
		s.Minimum = &v
	}
	if v, ok := cast.ToFloat64(m["maximum"]); ok {
		s.Maximum = &v
	}
	if v, ok := cast.ToInt64(m["minItems"]); ok {
		s.MinItems = &v
	}
	if v, ok := cast.ToInt64(m["maxItems"]); ok {
		s.MaxItems = &v
	}
	if v, ok := cast.ToInt64(m["minLength"]); ok {
		s.MinLength = &v
	}
	if v, ok := cast.ToInt64(m["maxLength"]); ok {
		s.MaxLength = &v
	}
	if enum, ok := m["enum"].([]any); ok {
		s.Enum = make([]string, 0, len(enum))
		for _, e := range enum {
			s.Enum = append(s.Enum, fmt.Sprint(e))
		}
	}
	if p, ok := m["properties"].(map[string]any); ok {
		names := make([]string, 0, len(p))
		for k := range p {
			names = append(names, k)
		}
		sort.Strings(names)
		s.Properties = make(map[string]*genai.Schema, len(p))
		for _, k := range names {
			sub, ok := p[k].(map[string]any)
			if !ok {
				continue
			}
			conv, err := toGenaiSchema(sub)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", k, err)
			}
			s.Properties[k] = conv
		}
		s.PropertyOrdering = names
	}
	if required, ok := cast.ToStringSlice(m["required"]); ok {
		s.Required = required
	}
	if items, ok := m["items"].(map[string]any); ok {
		conv, err := toGenaiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = conv
	}
	return s, nil
}

func genaiType(t string) (genai.Type, error) {
	switch t {
	case "string":
		return genai.TypeString, nil
	case "number":
		return genai.TypeNumber, nil
	case "integer":
		return genai.TypeInteger, nil
	case "boolean":
		return genai.TypeBoolean, nil
	case "array":
		return genai.TypeArray, nil
	case "object":
		return genai.TypeObject, nil
	default:
		return genai.TypeUnspecified, fmt.Errorf("%w: %q", errUnsupportedType, t)
	}
}
