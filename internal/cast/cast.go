// Package cast converts the loosely typed values found in decoded JSON and YAML (model
// config maps, JSON Schema documents, parsed model output) into the Go types callers want.
package cast

import (
	"encoding/json"
	"math"
)

// ToFloat64 converts any Go number or json.Number.
func ToFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	if i, ok := signed(v); ok {
		return float64(i), true
	}
	if u, ok := unsigned(v); ok {
		return float64(u), true
	}
	return 0, false
}

// ToInt64 converts any Go number or json.Number, truncating fractions. Unsigned values
// above math.MaxInt64 clamp to it; NaN and infinities fail.
func ToInt64(v any) (int64, bool) {
	if i, ok := signed(v); ok {
		return i, true
	}
	if u, ok := unsigned(v); ok {
		return int64(min(u, math.MaxInt64)), true
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := ToFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// ToStringSlice accepts []string, or []any holding only strings (as decoded from YAML).
func ToStringSlice(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Coerce rewrites the numbers of a decoded value to the Go type its JSON Schema asks
// for: int64 for "integer", float64 for "number". Numbers without a schema type become
// int64 when whole and float64 otherwise. Objects are walked through "properties" and
// arrays through "items", in place. Strings, booleans and nil are returned unchanged.
func Coerce(v any, schema map[string]any) any {
	switch x := v.(type) {
	case map[string]any:
		return CoerceRecord(x, schema)
	case []any:
		items, _ := schema["items"].(map[string]any)
		for i := range x {
			x[i] = Coerce(x[i], items)
		}
		return x
	case nil, string, bool:
		return v
	}
	typ, _ := schema["type"].(string)
	if typ == "integer" || (typ == "" && isWhole(v)) {
		if i, ok := ToInt64(v); ok {
			return i
		}
	}
	if f, ok := ToFloat64(v); ok {
		return f
	}
	return v
}

// CoerceRecord is Coerce for an object and its "properties" schema.
func CoerceRecord(record, schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	for name, v := range record {
		sub, _ := props[name].(map[string]any)
		record[name] = Coerce(v, sub)
	}
	return record
}

func isWhole(v any) bool {
	if n, ok := v.(json.Number); ok {
		if _, err := n.Int64(); err == nil {
			return true
		}
	}
	if _, ok := signed(v); ok {
		return true
	}
	if _, ok := unsigned(v); ok {
		return true
	}
	f, ok := ToFloat64(v)
	return ok && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func signed(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	default:
		return 0, false
	}
}

func unsigned(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	default:
		return 0, false
	}
}
