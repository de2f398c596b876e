package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"completions-gateway/internal/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and list its model routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", opts.configPath)
			fmt.Fprintf(out, "listen: %s\n", cfg.Listen)
			if cfg.DefaultModel != "" {
				fmt.Fprintf(out, "default model: %s\n", cfg.DefaultModel)
			}
			fmt.Fprintf(out, "models (%d): %s\n", len(cfg.ModelList), strings.Join(cfg.ModelNames(), ", "))
			return nil
		},
	}
}
