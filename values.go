package promptchain

import (
	"fmt"
	"maps"
)

// Values binds template variable names to values for one render call.
// Values may be strings, numbers, booleans, fmt.Stringer, or []ChatMessage / *History
// for history placeholders.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// formatValue returns the string form of a bound value for text substitution.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []ChatMessage:
		return BufferString(x)
	case *History:
		return BufferString(x.Messages())
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// historyFrom converts a history placeholder binding into messages.
func historyFrom(v any) ([]ChatMessage, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case []ChatMessage:
		return x, true
	case *History:
		return x.Messages(), true
	case *PromptValue:
		return x.Messages(), true
	default:
		return nil, false
	}
}
