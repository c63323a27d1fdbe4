package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"l2writer/internal/config"
	"l2writer/internal/daemonctl"
	"l2writer/internal/daemonrun"
	"l2writer/internal/outbox"
	"l2writer/internal/preflight"
	"l2writer/internal/spool"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the writer daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in logs")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running writer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not stop within %s and was killed\n", result.PID, grace)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "How long to wait before killing the daemon")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and outbox status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			pidValue := "-"
			if pid > 0 {
				pidValue = strconv.Itoa(pid)
			}

			pending := "-"
			if cfg.Outbox.Enabled {
				_ = ctx.withOutbox(func(_ *config.Config, store *outbox.Store) error {
					entries, err := store.Pending(cmd.Context(), 0)
					if err == nil {
						pending = strconv.Itoa(len(entries))
					}
					return err
				})
			}

			spooled := "-"
			if dirs, err := spool.SceneDirs(cfg.Paths.SpoolDir); err == nil {
				spooled = strconv.Itoa(len(dirs))
			}

			done := "-"
			if dirs, err := spool.ListDirs(cfg.Paths.DoneDir); err == nil {
				var size int64
				for _, dir := range dirs {
					size += dir.Size
				}
				done = fmt.Sprintf("%d (%.1f MiB)", len(dirs), float64(size)/(1<<20))
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"Daemon running", yesNo(running)},
				{"PID", pidValue},
				{"Spooled scenes", spooled},
				{"Done scenes", done},
				{"Pending notifications", pending},
				{"Publisher enabled", yesNo(cfg.Publisher.Enabled)},
				{"Shared lock", yesNo(cfg.Lock.Enabled)},
				{"Spool directory", cfg.Paths.SpoolDir},
				{"Outbox", cfg.OutboxPath()},
			}))

			checks := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(checks))
			for _, check := range checks {
				state := "ok"
				if !check.Passed {
					state = "FAIL"
				}
				rows = append(rows, []string{check.Name, state, check.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{header: "Check"}, {header: "State"}, {header: "Detail"}}, rows))
			return nil
		},
	}
}
