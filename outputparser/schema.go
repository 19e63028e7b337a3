package outputparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/skosovsky/promptchain"
)

// ErrInvalidSchema is returned when a schema cannot be built or compiled.
var ErrInvalidSchema = errors.New("outputparser: invalid schema")

// JSON Schema type names used by Field.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Field describes one property of a record schema. Fields are values: every builder
// method returns a modified copy.
type Field struct {
	name        string
	typ         string
	description string
	required    bool
	minimum     *float64
	maximum     *float64
	minLength   *int
	maxLength   *int
	minItems    *int
	maxItems    *int
	pattern     string
	format      string
	enum        []any
	def         any
	hasDefault  bool
	items       *Field
	fields      []Field
}

// StringField declares a string property.
func StringField(name string) Field { return Field{name: name, typ: TypeString} }

// IntegerField declares an integer property. Parsed values are int64.
func IntegerField(name string) Field { return Field{name: name, typ: TypeInteger} }

// NumberField declares a floating-point property. Parsed values are float64.
func NumberField(name string) Field { return Field{name: name, typ: TypeNumber} }

// BooleanField declares a boolean property.
func BooleanField(name string) Field { return Field{name: name, typ: TypeBoolean} }

// ArrayField declares an array property whose elements follow items (its name is ignored).
func ArrayField(name string, items Field) Field {
	return Field{name: name, typ: TypeArray, items: &items}
}

// ObjectField declares a nested record.
func ObjectField(name string, fields ...Field) Field {
	return Field{name: name, typ: TypeObject, fields: slices.Clone(fields)}
}

// Required marks the field as mandatory.
func (f Field) Required() Field { f.required = true; return f }

// Describe sets the description shown to the model.
func (f Field) Describe(d string) Field { f.description = d; return f }

// Min sets the inclusive minimum of a numeric field.
func (f Field) Min(v float64) Field { f.minimum = &v; return f }

// Max sets the inclusive maximum of a numeric field.
func (f Field) Max(v float64) Field { f.maximum = &v; return f }

// Range sets both numeric bounds.
func (f Field) Range(lo, hi float64) Field { return f.Min(lo).Max(hi) }

// MinLen sets the minimum string length.
func (f Field) MinLen(n int) Field { f.minLength = &n; return f }

// MaxLen sets the maximum string length.
func (f Field) MaxLen(n int) Field { f.maxLength = &n; return f }

// MinItems sets the minimum array length.
func (f Field) MinItems(n int) Field { f.minItems = &n; return f }

// MaxItems sets the maximum array length.
func (f Field) MaxItems(n int) Field { f.maxItems = &n; return f }

// Pattern sets a regular expression a string field must match.
func (f Field) Pattern(re string) Field { f.pattern = re; return f }

// Format sets a JSON Schema format such as "date" or "email".
func (f Field) Format(format string) Field { f.format = format; return f }

// Enum restricts the field to the given values.
func (f Field) Enum(values ...any) Field { f.enum = slices.Clone(values); return f }

// Default sets the value filled in when an optional field is omitted.
func (f Field) Default(v any) Field { f.def = v; f.hasDefault = true; return f }

// Name returns the property name.
func (f Field) Name() string { return f.name }

func (f Field) check(path string) error {
	if f.typ == "" {
		return fmt.Errorf("%w: %s has no type", ErrInvalidSchema, path)
	}
	if f.minimum != nil && f.maximum != nil && *f.minimum > *f.maximum {
		return fmt.Errorf("%w: %s minimum %v exceeds maximum %v", ErrInvalidSchema, path, *f.minimum, *f.maximum)
	}
	if f.minLength != nil && f.maxLength != nil && *f.minLength > *f.maxLength {
		return fmt.Errorf("%w: %s minLength exceeds maxLength", ErrInvalidSchema, path)
	}
	if f.minItems != nil && f.maxItems != nil && *f.minItems > *f.maxItems {
		return fmt.Errorf("%w: %s minItems exceeds maxItems", ErrInvalidSchema, path)
	}
	switch f.typ {
	case TypeArray:
		if f.items == nil {
			return fmt.Errorf("%w: array %s has no item type", ErrInvalidSchema, path)
		}
		return f.items.check(path + "[]")
	case TypeObject:
		return checkFields(f.fields, path+".")
	}
	return nil
}

func checkFields(fields []Field, prefix string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.name == "" {
			return fmt.Errorf("%w: field in %q has no name", ErrInvalidSchema, strings.TrimSuffix(prefix, "."))
		}
		if seen[f.name] {
			return fmt.Errorf("%w: duplicate field %s%s", ErrInvalidSchema, prefix, f.name)
		}
		seen[f.name] = true
		if err := f.check(prefix + f.name); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) jsonSchema() map[string]any {
	out := map[string]any{"type": f.typ}
	if f.description != "" {
		out["description"] = f.description
	}
	if f.minimum != nil {
		out["minimum"] = *f.minimum
	}
	if f.maximum != nil {
		out["maximum"] = *f.maximum
	}
	if f.minLength != nil {
		out["minLength"] = *f.minLength
	}
	if f.maxLength != nil {
		out["maxLength"] = *f.maxLength
	}
	if f.minItems != nil {
		out["minItems"] = *f.minItems
	}
	if f.maxItems != nil {
		out["maxItems"] = *f.maxItems
	}
	if f.pattern != "" {
		out["pattern"] = f.pattern
	}
	if f.format != "" {
		out["format"] = f.format
	}
	if len(f.enum) > 0 {
		out["enum"] = slices.Clone(f.enum)
	}
	if f.hasDefault {
		out["default"] = f.def
	}
	switch f.typ {
	case TypeArray:
		out["items"] = f.items.jsonSchema()
	case TypeObject:
		maps.Copy(out, objectSchema(f.fields))
	}
	return out
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []any{}
	for _, f := range fields {
		props[f.name] = f.jsonSchema()
		if f.required {
			required = append(required, f.name)
		}
	}
	out := map[string]any{"type": TypeObject, "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Schema is a compiled JSON Schema for an object record. It is immutable and safe for
// concurrent use.
type Schema struct {
	name     string
	doc      map[string]any
	compiled *gojsonschema.Schema
}

// NewSchema builds a record schema from fields.
func NewSchema(fields ...Field) (*Schema, error) {
	if err := checkFields(fields, ""); err != nil {
		return nil, err
	}
	return compile("", objectSchema(fields))
}

// MustSchema is like NewSchema but panics on error. For package-level schemas.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaFromDefinition compiles a manifest response_format definition.
func SchemaFromDefinition(def *promptchain.SchemaDefinition) (*Schema, error) {
	if def == nil || len(def.Schema) == 0 {
		return nil, fmt.Errorf("%w: empty definition", ErrInvalidSchema)
	}
	doc := maps.Clone(def.Schema)
	if desc := def.Description; desc != "" {
		if _, ok := doc["description"]; !ok {
			doc["description"] = desc
		}
	}
	return compile(def.Name, doc)
}

// SchemaFor reflects a schema from the Go type T using json struct tags. Fields without
// omitempty are required; jsonschema tags add descriptions, enums and bounds.
func SchemaFor[T any]() (*Schema, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	reflected := r.Reflect(new(T))
	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	if doc["type"] != TypeObject {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidSchema, reflect.TypeFor[T]())
	}
	return compile(reflect.TypeFor[T]().Name(), doc)
}

// FromNamesAndDescriptions builds a schema of required string fields, one per entry.
func FromNamesAndDescriptions(fields map[string]string) (*Schema, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Field, 0, len(names))
	for _, name := range names {
		out = append(out, StringField(name).Describe(fields[name]).Required())
	}
	return NewSchema(out...)
}

func compile(name string, in map[string]any) (*Schema, error) {
	doc, err := normalize(in)
	if err != nil {
		return nil, err
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return &Schema{name: name, doc: doc, compiled: compiled}, nil
}

// normalize deep-copies a decoded schema document through JSON so nested maps from
// YAML or Go literals share one representation.
func normalize(in map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return out, nil
}

// Name returns the schema name, if any.
func (s *Schema) Name() string { return s.name }

// Document returns a deep copy of the JSON Schema document.
func (s *Schema) Document() map[string]any {
	out, err := normalize(s.doc)
	if err != nil {
		return nil
	}
	return out
}

// JSON returns the indented JSON Schema text.
func (s *Schema) JSON() string {
	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Definition converts the schema back into a SchemaDefinition, e.g. for provider-native
// structured output.
func (s *Schema) Definition() *promptchain.SchemaDefinition {
	return &promptchain.SchemaDefinition{Name: s.name, Schema: s.Document()}
}

// Validate checks a decoded record and returns every violation, or nil.
func (s *Schema) Validate(record any) ([]promptchain.FieldViolation, error) {
	res, err := s.compiled.Validate(gojsonschema.NewGoLoader(record))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", promptchain.ErrOutputParse, err)
	}
	if res.Valid() {
		return nil, nil
	}
	out := make([]promptchain.FieldViolation, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		out = append(out, promptchain.FieldViolation{
			Field:       violationField(re),
			Description: re.Description(),
			Value:       re.Value(),
		})
	}
	return out, nil
}

// violationField names the offending property. Missing-property errors are reported
// against the parent object, so the property name is appended.
func violationField(re gojsonschema.ResultError) string {
	field := re.Field()
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			if field == "(root)" || field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	return field
}
