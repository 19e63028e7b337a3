package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
)

const defaultQuestion = "What is the capital of France?"

var capitalQuestions = []string{
	"What is the capital of France?",
	"What is the capital of Germany?",
	"What is the capital of Italy?",
	"What is the capital of Spain?",
	"What is the capital of Portugal?",
	"What is the capital of Greece?",
	"What is the capital of Turkey?",
	"What is the capital of Egypt?",
}

func newAskCmd(get appGetter) *cobra.Command {
	var (
		stream      bool
		batch       bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Send a question straight to the model",
		Long: `Send a question to the model without a template.

With --stream the answer is printed as it arrives. With --batch every argument is a
separate question answered concurrently; without arguments a fixed list of capital
city questions is used.`,
		Example: `  promptchain ask "What is the capital of France?"
  promptchain ask --stream
  promptchain ask --batch "2+2?" "3+3?"`,
		RunE: get.run(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if batch {
				questions := args
				if len(questions) == 0 {
					questions = capitalQuestions
				}
				return askBatch(cmd, a, questions, concurrency)
			}
			question := strings.Join(args, " ")
			if question == "" {
				question = defaultQuestion
			}
			if stream {
				for chunk, err := range a.model.Stream(ctx, promptchain.UserPrompt(question), a.callOpts...) {
					if err != nil {
						a.out.Line("")
						return err
					}
					a.out.Chunk(chunk.Text)
				}
				a.out.Line("")
				return nil
			}
			resp, err := a.model.Generate(ctx, promptchain.UserPrompt(question), a.callOpts...)
			if err != nil {
				return err
			}
			a.out.Line(resp.Text)
			if a.cfg.Verbose {
				a.out.Detail("model", resp.Model)
				a.out.Detail("tokens", resp.Usage.TotalTokens)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	cmd.Flags().BoolVar(&batch, "batch", false, "answer every argument as a separate question")
	cmd.Flags().IntVar(&concurrency, "concurrency", chain.DefaultBatchConcurrency, "parallel requests for --batch (0 is unlimited)")
	cmd.MarkFlagsMutuallyExclusive("stream", "batch")
	return cmd
}

func askBatch(cmd *cobra.Command, a *app, questions []string, concurrency int) error {
	ask := chain.Pipe(chain.Lambda(promptchain.UserPrompt), chain.Model(a.model, a.callOpts...)).
		With(a.chainOptions(cmd.Context())...)
	answers, err := chain.Batch(cmd.Context(), ask, questions, chain.WithMaxConcurrency(concurrency))
	if err != nil {
		return err
	}
	for i, q := range questions {
		a.out.Message(promptchain.ChatMessage{Role: promptchain.RoleUser, Content: q})
		a.out.Message(promptchain.ChatMessage{Role: promptchain.RoleAssistant, Content: answers[i].Text})
	}
	return nil
}
