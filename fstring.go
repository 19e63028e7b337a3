package promptchain

import (
	"fmt"
	"strings"
)

// segment is either literal text or a {variable} reference.
type segment struct {
	text     string
	variable bool
}

// parseFString splits text into literal and placeholder segments.
// "{{" and "}}" are literal braces; "{name}" references a variable.
func parseFString(text string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d", ErrTemplateParse, i)
			}
			name := strings.TrimSpace(text[i+1 : i+1+end])
			if !isIdentifier(name) {
				return nil, fmt.Errorf("%w: invalid placeholder %q at offset %d", ErrTemplateParse, name, i)
			}
			flush()
			segs = append(segs, segment{text: name, variable: true})
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d", ErrTemplateParse, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// segmentVars returns referenced variable names in order of first appearance.
func segmentVars(segs []segment) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range segs {
		if s.variable && !seen[s.text] {
			seen[s.text] = true
			out = append(out, s.text)
		}
	}
	return out
}

// renderSegments substitutes values in a single pass. Callers check for missing variables first.
func renderSegments(segs []segment, vals Values) string {
	var b strings.Builder
	for _, s := range segs {
		if !s.variable {
			b.WriteString(s.text)
			continue
		}
		b.WriteString(formatValue(vals[s.text]))
	}
	return b.String()
}
