package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"l2writer/internal/config"
	"l2writer/internal/notify"
	"l2writer/internal/outbox"
)

func newOutboxCommand(ctx *commandContext) *cobra.Command {
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay journaled notifications",
	}
	outboxCmd.AddCommand(newOutboxListCommand(ctx))
	outboxCmd.AddCommand(newOutboxReplayCommand(ctx))
	outboxCmd.AddCommand(newOutboxPruneCommand(ctx))
	return outboxCmd
}

func newOutboxListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications (pending only unless --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOutbox(func(_ *config.Config, store *outbox.Store) error {
				entries, err := store.List(cmd.Context(), all, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No notifications")
					return nil
				}
				fmt.Fprintln(out, renderTable(outboxColumns, outboxRows(entries)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include delivered notifications")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows (0 for all)")
	return cmd
}

var outboxColumns = []column{
	{header: "ID", align: alignRight},
	{header: "Topic"},
	{header: "File"},
	{header: "Created"},
	{header: "Sent"},
	{header: "Attempts", align: alignRight},
	{header: "Last error"},
}

func outboxRows(entries []outbox.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		file := "-"
		if msg, err := e.Message(); err == nil {
			if uid, ok := msg.Data["uid"].(string); ok {
				file = uid
			}
		}
		sent := "-"
		if e.SentAt != nil {
			sent = e.SentAt.Local().Format(time.DateTime)
		}
		lastErr := e.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Topic,
			file,
			e.CreatedAt.Local().Format(time.DateTime),
			sent,
			strconv.Itoa(e.Attempts),
			lastErr,
		})
	}
	return rows
}

func newOutboxReplayCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resend pending notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOutbox(func(cfg *config.Config, store *outbox.Store) error {
				if !cfg.Publisher.Enabled {
					return fmt.Errorf("publisher is disabled; set publisher.enabled to replay")
				}
				logger, err := ctx.commandLogger(cfg)
				if err != nil {
					return err
				}
				pub, err := notify.Dial(cmd.Context(), cfg.Publisher, logger)
				if err != nil {
					return err
				}
				defer pub.Close()

				result, err := outbox.Replay(cmd.Context(), store, pub, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d of %d pending notification(s); %d failed\n",
					result.Sent, result.Pending, result.Failed)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum notifications to resend (0 for all)")
	return cmd
}

func newOutboxPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete delivered notifications older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOutbox(func(cfg *config.Config, store *outbox.Store) error {
				keep := days
				if !cmd.Flags().Changed("older-than") {
					keep = cfg.Outbox.RetentionDays
				}
				cutoff := time.Now().Add(-time.Duration(keep) * 24 * time.Hour)
				removed, err := store.Prune(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d delivered notification(s) older than %d day(s)\n", removed, keep)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "older-than", 0, "Age in days (default: outbox.retention_days)")
	return cmd
}
