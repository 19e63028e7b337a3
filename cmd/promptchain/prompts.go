package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptchain"
)

func newPromptsCmd(get appGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect the prompt registry",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List template names",
			Args:  cobra.NoArgs,
			RunE: get.run(func(cmd *cobra.Command, a *app, _ []string) error {
				names, err := a.prompts.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range names {
					a.out.Line(n)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print a template's messages, variables and model settings",
			Args:  cobra.ExactArgs(1),
			RunE: get.run(func(cmd *cobra.Command, a *app, args []string) error {
				tpl, err := a.template(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				showTemplate(a, tpl)
				return nil
			}),
		},
	)
	return cmd
}

func showTemplate(a *app, tpl *promptchain.ChatPromptTemplate) {
	md := tpl.Metadata
	a.out.Heading(md.ID)
	if md.Version != "" {
		a.out.Detail("version", md.Version)
	}
	if md.Environment != "" {
		a.out.Detail("env", md.Environment)
	}
	if md.Description != "" {
		a.out.Detail("description", md.Description)
	}
	if len(md.Tags) > 0 {
		a.out.Detail("tags", strings.Join(md.Tags, ", "))
	}
	a.out.Detail("variables", strings.Join(tpl.InputVariables(), ", "))
	for _, k := range slices.Sorted(maps.Keys(tpl.PartialVariables)) {
		a.out.Detail("partial "+k, fmt.Sprint(tpl.PartialVariables[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(tpl.ModelConfig)) {
		a.out.Detail("model_config "+k, fmt.Sprint(tpl.ModelConfig[k]))
	}
	if tpl.OutputSchema != nil {
		a.out.Detail("response_format", tpl.OutputSchema.Name)
	}
	for _, m := range tpl.Messages {
		if m.Placeholder {
			a.out.Line("[history " + m.Content + "]")
			continue
		}
		a.out.Message(promptchain.ChatMessage{Role: m.Role, Content: m.Content})
	}
}
