package main

import (
	"errors"
	"io"
	"slices"

	"github.com/manifoldco/promptui"
)

// errCanceled is returned when the user interrupts a selection.
var errCanceled = errors.New("canceled")

// byteReader hands promptui one byte per Read. readline buffers whatever a Read returns
// and drops it when the prompt closes, so larger reads would swallow the lines meant for
// later turns when input is piped.
type byteReader struct{ r io.Reader }

func (b byteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return b.r.Read(p)
}

func (byteReader) Close() error { return nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readLine asks for one line of input. promptui.ErrEOF and promptui.ErrInterrupt are
// returned as is so loops can treat them as quit.
func (a *app) readLine(label string) (string, error) {
	p := promptui.Prompt{
		Label:  label,
		Stdin:  byteReader{a.in},
		Stdout: nopWriteCloser{a.out.Writer()},
	}
	return p.Run()
}

// ask is readLine with a default that an empty answer keeps.
func (a *app) ask(label, def string) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: def,
		Stdin:   byteReader{a.in},
		Stdout:  nopWriteCloser{a.out.Writer()},
	}
	v, err := p.Run()
	if isQuit(err) {
		return "", errCanceled
	}
	return v, err
}

// choose shows items as a selectable list starting at def.
func (a *app) choose(label string, items []string, def string) (string, error) {
	s := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: max(slices.Index(items, def), 0),
		Stdin:     byteReader{a.in},
		Stdout:    nopWriteCloser{a.out.Writer()},
	}
	_, v, err := s.Run()
	if isQuit(err) {
		return "", errCanceled
	}
	return v, err
}

func isQuit(err error) bool {
	return errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrInterrupt)
}
