// Command completions-gateway serves an OpenAI-compatible chat completions
// API backed by Anthropic Messages endpoints or a local command, and
// guarantees parseable JSON content when structured output is requested.
//
// Usage:
//
//	completions-gateway serve -c config.yaml
//	completions-gateway validate -c config.yaml
//	echo 'Sure: {"a":1}' | completions-gateway conform
//	completions-gateway audit list -c config.yaml
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	logger := newLogger(os.Stdout, "info")
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "completions-gateway",
		Short:         "OpenAI-compatible chat completions gateway with guaranteed JSON output",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to yaml config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newConformCmd(opts),
		newAuditCmd(opts),
	)
	return cmd
}

// newLogger builds the JSON logger from the first non-empty level.
func newLogger(w io.Writer, levels ...string) *slog.Logger {
	level := slog.LevelInfo
	for _, l := range levels {
		if strings.TrimSpace(l) == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(l)) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		break
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
