// Package daemonrun hosts the foreground daemon process: logger setup, pid file,
// signal handling, and the daemon lifecycle.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"l2writer/internal/config"
	"l2writer/internal/daemon"
	"l2writer/internal/logging"
	"l2writer/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the l2writer daemon and blocks until a signal arrives or the writer
// stage exits on a fatal error, which is returned.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("l2writer-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update l2writer.log link: %v\n", err)
	}
	logConfigSnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "l2writer.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	stageErr := d.Wait(signalCtx)
	if stageErr != nil && !errors.Is(stageErr, context.Canceled) {
		logging.ErrorWithContext(logger, "writer stage failed", "daemon_stage_failed",
			logging.Error(stageErr),
			logging.String(logging.FieldErrorHint, "fix the cause and restart l2writer"),
		)
		return stageErr
	}
	logger.Info("l2writer daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "l2writer.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("spool_dir", cfg.Paths.SpoolDir),
		logging.String("done_dir", cfg.Paths.DoneDir),
		logging.String("product_list", cfg.Writer.ProductList),
		logging.String("topic", cfg.Writer.Topic),
		logging.Bool("publisher_enabled", cfg.Publisher.Enabled),
		logging.Strings("publisher_urls", cfg.Publisher.URLs),
		logging.Bool("lock_enabled", cfg.Lock.Enabled),
		logging.String("lock_path", cfg.Lock.Path),
		logging.Bool("object_store", cfg.ObjectStore.Endpoint != ""),
		logging.Bool("outbox_enabled", cfg.Outbox.Enabled),
		logging.String("metrics_bind", cfg.Metrics.Bind),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "writes or notifications may fail until resolved"),
		)
	}
}
