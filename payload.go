package promptchain

import (
	"fmt"
	"reflect"
	"sync"
)

type payloadField struct {
	index     int
	tag       string
	isHistory bool
}

type payloadSchema struct {
	fields []payloadField
}

var payloadCache sync.Map // reflect.Type -> *payloadSchema

// chatMessageSliceType is the cached reflect type of a history field.
var chatMessageSliceType = reflect.TypeFor[[]ChatMessage]()

// ValuesFromStruct builds render bindings from a struct whose fields carry prompt:"name" tags.
// Fields tagged "-" or untagged are skipped. A []ChatMessage field binds the history
// placeholder named by its tag. Returns ErrInvalidPayload for non-struct payloads and
// structs without tagged fields.
func ValuesFromStruct(payload any) (Values, error) {
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, ErrInvalidPayload
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidPayload, payload)
	}
	schema, err := payloadSchemaFor(v.Type())
	if err != nil {
		return nil, err
	}
	vals := make(Values, len(schema.fields))
	for _, fi := range schema.fields {
		field := v.Field(fi.index)
		if !field.CanInterface() {
			continue
		}
		if fi.isHistory {
			vals[fi.tag] = field.Interface().([]ChatMessage)
			continue
		}
		vals[fi.tag] = field.Interface()
	}
	return vals, nil
}

func payloadSchemaFor(typ reflect.Type) (*payloadSchema, error) {
	if cached, ok := payloadCache.Load(typ); ok {
		return cached.(*payloadSchema), nil
	}
	schema := &payloadSchema{}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("prompt")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		schema.fields = append(schema.fields, payloadField{index: i, tag: tag, isHistory: f.Type == chatMessageSliceType})
	}
	if len(schema.fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no prompt tags", ErrInvalidPayload, typ)
	}
	payloadCache.Store(typ, schema)
	return schema, nil
}
