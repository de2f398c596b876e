package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"completions-gateway/internal/conform"
)

func newConformCmd(opts *rootOptions) *cobra.Command {
	var showStrategy bool
	cmd := &cobra.Command{
		Use:   "conform [text|-]",
		Short: "Turn model output into a JSON document",
		Long: `Reads model output from the argument or stdin and prints the JSON the
gateway would return for it when structured output is requested.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 && args[0] != "-" {
				text = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}

			engine := conform.NewEngine(newLogger(os.Stderr, opts.logLevel, "error"))
			result := engine.Ensure(text)
			if showStrategy {
				fmt.Fprintf(cmd.ErrOrStderr(), "strategy: %s\n", result.Strategy)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Payload)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showStrategy, "show-strategy", false, "print the strategy that produced the output to stderr")
	return cmd
}
