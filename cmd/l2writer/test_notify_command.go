package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"l2writer/internal/notify"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Publish a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !cfg.Publisher.Enabled {
				fmt.Fprintln(out, "Publisher disabled; notification not sent")
				return nil
			}
			logger, err := ctx.commandLogger(cfg)
			if err != nil {
				return err
			}

			dialCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			pub, err := notify.Dial(dialCtx, cfg.Publisher, logger)
			if err != nil {
				return err
			}
			defer pub.Close()

			msg := notify.NewMessage(topic, notify.TypeInfo, map[string]any{
				"message": "l2writer test notification",
			})
			if err := pub.Send(cmd.Context(), msg); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(out, "Test notification sent on %s\n", notify.Subject(cfg.Publisher.SubjectPrefix, topic))
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "/l2writer/test", "Topic for the test message")
	return cmd
}
