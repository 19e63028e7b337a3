// Package console prints CLI output with optional ANSI colors.
package console

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/skosovsky/promptchain"
)

// Printer writes headings, chat turns and errors to w.
type Printer struct {
	w io.Writer

	bold   *color.Color
	human  *color.Color
	ai     *color.Color
	system *color.Color
	failed *color.Color
	faint  *color.Color
}

// New returns a Printer. With noColor set every printer emits plain text; otherwise
// fatih/color decides based on the terminal and NO_COLOR.
func New(w io.Writer, noColor bool) *Printer {
	p := &Printer{
		w:      w,
		bold:   color.New(color.Bold),
		human:  color.New(color.FgCyan, color.Bold),
		ai:     color.New(color.FgGreen, color.Bold),
		system: color.New(color.FgYellow),
		failed: color.New(color.FgRed, color.Bold),
		faint:  color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{p.bold, p.human, p.ai, p.system, p.failed, p.faint} {
			c.DisableColor()
		}
	}
	return p
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Heading prints a bold section title.
func (p *Printer) Heading(title string) {
	_, _ = p.bold.Fprintln(p.w, title)
}

// Line prints plain text followed by a newline.
func (p *Printer) Line(text string) {
	_, _ = fmt.Fprintln(p.w, text)
}

// Chunk prints a streamed fragment without a trailing newline.
func (p *Printer) Chunk(text string) {
	_, _ = fmt.Fprint(p.w, text)
}

// Message prints "Speaker: content" with the speaker colored by role.
func (p *Printer) Message(msg promptchain.ChatMessage) {
	label := p.label(msg.Role)
	_, _ = fmt.Fprintf(p.w, "%s %s\n", label, msg.Content)
}

// Detail prints a dimmed "key: value" line.
func (p *Printer) Detail(key string, value any) {
	_, _ = p.faint.Fprintf(p.w, "%s: %v\n", key, value)
}

// Error prints err in red. Interactive loops call it and continue.
func (p *Printer) Error(err error) {
	_, _ = p.failed.Fprintf(p.w, "error: %v\n", err)
}

func (p *Printer) label(r promptchain.Role) string {
	text := promptchain.ChatMessage{Role: r}.String()
	text = text[:len(text)-1]
	switch r {
	case promptchain.RoleUser:
		return p.human.Sprint(text)
	case promptchain.RoleAssistant:
		return p.ai.Sprint(text)
	case promptchain.RoleSystem:
		return p.system.Sprint(text)
	default:
		return text
	}
}
