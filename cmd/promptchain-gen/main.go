// Command promptchain-gen generates typed input structs for prompt manifests.
//
//	promptchain-gen -pkg prompts -out prompts_gen.go ./prompts
//
// Every template gets an id constant and, when it has unbound variables, a struct whose
// fields carry prompt tags. History placeholders become []promptchain.ChatMessage fields.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chainlog "github.com/skosovsky/promptchain/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "promptchain-gen:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		pkg, out       string
		verbose, quiet bool
	)
	cmd := &cobra.Command{
		Use:           "promptchain-gen [flags] <dir|manifest.yaml>...",
		Short:         "Generate Go input structs from prompt manifests",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := chainlog.Setup(chainlog.Options{Verbose: verbose, Quiet: quiet, Writer: cmd.ErrOrStderr()})
			files, err := collect(args)
			if err != nil {
				return err
			}
			templates, err := load(files)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := generate(&buf, pkg, templates); err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil { // #nosec G306 -- generated source
				return err
			}
			logger.Info("generated", "file", out, "templates", len(templates))
			return nil
		},
	}
	cmd.Flags().StringVar(&pkg, "pkg", "prompts", "package name of the generated file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty or -)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	return cmd
}
