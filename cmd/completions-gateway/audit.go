package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"completions-gateway/internal/audit"
	"completions-gateway/internal/config"
)

type auditOptions struct {
	dbPath string
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	aopts := &auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and prune the completion audit log",
	}
	cmd.PersistentFlags().StringVar(&aopts.dbPath, "db", "", "audit database path (default: audit.path from config)")

	cmd.AddCommand(newAuditListCmd(opts, aopts), newAuditPruneCmd(opts, aopts))
	return cmd
}

func newAuditListCmd(opts *rootOptions, aopts *auditOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent completions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := aopts.resolvePath(opts)
			if err != nil {
				return err
			}
			store, err := audit.OpenSQLite(path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tREQUEST\tMODEL\tBACKEND\tJSON\tSTRATEGY\tSTATUS\tDURATION")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\t%dms\n",
					rec.CreatedAt.Format(time.RFC3339),
					rec.RequestID,
					rec.Model,
					rec.Backend,
					rec.RequiresJSON,
					orDash(rec.Strategy),
					rec.Status,
					rec.DurationMS,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func newAuditPruneCmd(opts *rootOptions, aopts *auditOptions) *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete records older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := aopts.resolvePath(opts)
			if err != nil {
				return err
			}
			if retentionDays <= 0 {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				retentionDays = cfg.Audit.RetentionDays
			}
			if retentionDays <= 0 {
				return fmt.Errorf("retention must be at least one day")
			}

			store, err := audit.OpenSQLite(path)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := newLogger(os.Stderr, opts.logLevel)
			deleted, err := audit.NewScheduler(store, retentionDays, "", logger).Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records older than %d days\n", deleted, retentionDays)
			return nil
		},
	}
	cmd.Flags().IntVar(&retentionDays, "days", 0, "retention window in days (default: audit.retention_days from config)")
	return cmd
}

func (a *auditOptions) resolvePath(opts *rootOptions) (string, error) {
	if a.dbPath != "" {
		return a.dbPath, nil
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Audit.Path, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
