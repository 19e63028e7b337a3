package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
	"github.com/skosovsky/promptchain/outputparser"
)

// Translation pipeline forms selectable with --mode.
const (
	modePlain    = "plain"
	modePipe     = "pipe"
	modeSequence = "sequence"
	modeChat     = "chat"
)

const translationPrefix = "La traduccion es: "

func newTranslateCmd(get appGetter) *cobra.Command {
	var from, to, mode string
	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate a sentence through a prompt, model and parser chain",
		Long: `Translate text with the "translator" prompt.

Modes:
  plain     render the prompt and call the model by hand
  pipe      prompt | model | string parser | prefix lambda, built with chain.Pipe
  sequence  the same four stages as a dynamically typed chain.Sequence
  chat      the "translator_chat" prompt with a system persona`,
		Args: cobra.MaximumNArgs(1),
		RunE: get.run(func(cmd *cobra.Command, a *app, args []string) error {
			text := "Hola, como estas?"
			if len(args) == 1 {
				text = args[0]
			}
			vals := promptchain.Values{"language1": from, "language2": to, "text": text}
			out, err := translate(cmd, a, mode, vals)
			if err != nil {
				return err
			}
			a.out.Line(out)
			return nil
		}),
	}
	cmd.Flags().StringVar(&from, "from", "es", "source language")
	cmd.Flags().StringVar(&to, "to", "en", "target language")
	cmd.Flags().StringVar(&mode, "mode", modePipe, "pipeline form: plain, pipe, sequence or chat")
	return cmd
}

func translate(cmd *cobra.Command, a *app, mode string, vals promptchain.Values) (string, error) {
	ctx := cmd.Context()
	name := "translator"
	if mode == modeChat {
		name = "translator_chat"
	}
	tpl, err := a.template(ctx, name)
	if err != nil {
		return "", err
	}
	prefix := chain.Lambda(func(s string) string { return translationPrefix + s })

	switch mode {
	case modePlain:
		pv, err := tpl.Invoke(ctx, vals)
		if err != nil {
			return "", err
		}
		resp, err := a.model.Generate(ctx, pv, a.optionsFor(tpl)...)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	case modePipe, modeChat:
		c := chain.Pipe(chain.Pipe3(tpl, a.modelStage(tpl), outputparser.String()), prefix).
			With(a.chainOptions(ctx)...)
		return c.Invoke(ctx, vals)
	case modeSequence:
		seq := chain.NewSequence(
			chain.Erase(tpl),
			chain.Erase(a.modelStage(tpl)),
			chain.Erase(outputparser.String()),
			chain.Erase(prefix),
		).With(a.chainOptions(ctx)...)
		out, err := seq.Invoke(ctx, vals)
		if err != nil {
			return "", err
		}
		s, ok := out.(string)
		if !ok {
			return "", fmt.Errorf("%w: sequence returned %T", chain.ErrStageInput, out)
		}
		return s, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want plain, pipe, sequence or chat)", mode)
	}
}
