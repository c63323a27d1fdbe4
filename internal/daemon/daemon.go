package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"l2writer/internal/config"
	"l2writer/internal/logging"
	"l2writer/internal/metrics"
	"l2writer/internal/notify"
	"l2writer/internal/outbox"
	"l2writer/internal/productlist"
	"l2writer/internal/queue"
	"l2writer/internal/spool"
	"l2writer/internal/workflow"
	"l2writer/internal/writer"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *queue.Queue
	supervisor *workflow.Supervisor
	ingester   *spool.Ingester
	store      *outbox.Store
	delegate   *writer.Computer
	metricsSrv *metrics.Server
	workerOpts workflow.Options

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Worker       workflow.State
	WorkerAlive  bool
	WorkerError  string
	QueueDepth   int
	OutboxPath   string
	LockFilePath string
	MetricsAddr  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := metrics.NewRegistry()
	stage, err := metrics.NewStage(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	delegate, err := writer.NewComputer(cfg, logger)
	if err != nil {
		return nil, err
	}

	var store *outbox.Store
	if cfg.Outbox.Enabled {
		store, err = outbox.Open(cfg.OutboxPath())
		if err != nil {
			return nil, fmt.Errorf("open outbox: %w", err)
		}
	}

	handoff := workflow.LockFromConfig(cfg)
	q := queue.New(cfg.Workflow.QueueSize)

	opts := workflow.OptionsFromConfig(cfg)
	opts.Delegate = delegate
	opts.Connect = notify.NewConnector(cfg.Publisher, logger)
	if store != nil {
		opts.Journal = store
	}
	opts.Metrics = stage
	opts.Logger = logger

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		queue:      q,
		supervisor: workflow.NewSupervisor(q, handoff, logger),
		store:      store,
		delegate:   delegate,
		workerOpts: opts,
		lockPath:   cfg.DaemonLockPath(),
		lock:       flock.New(cfg.DaemonLockPath()),
	}
	if cfg.Metrics.Bind != "" {
		d.metricsSrv = metrics.NewServer(cfg.Metrics.Bind, registry)
	}
	d.ingester = spool.New(q, spool.Options{
		SpoolDir:     cfg.Paths.SpoolDir,
		DoneDir:      cfg.Paths.DoneDir,
		PollInterval: time.Duration(cfg.Workflow.SpoolPollInterval) * time.Second,
		ProductList:  d.productList,
		Lock:         handoff,
		LockTimeout:  opts.LockTimeout,
		Logger:       logger,
	})
	return d, nil
}

// Start acquires the daemon lock and launches the writer stage and the spool ingester.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another l2writer daemon instance is already running")
	}

	if d.metricsSrv != nil {
		if err := d.metricsSrv.Start(); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.supervisor.Start(runCtx, d.workerOpts); err != nil {
		cancel()
		d.stopMetrics()
		_ = d.lock.Unlock()
		return fmt.Errorf("start writer stage: %w", err)
	}

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		_ = d.ingester.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.pruneLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("l2writer daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("spool_dir", d.cfg.Paths.SpoolDir),
		logging.String("metrics", d.MetricsAddr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	d.supervisor.Stop()
	d.stopMetrics()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("l2writer daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.delegate != nil {
		errs = append(errs, d.delegate.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// RestartWorker replaces the running writer stage. The queue and any items in it
// are kept.
func (d *Daemon) RestartWorker(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	return d.supervisor.Restart(ctx, d.workerOpts)
}

// Wait blocks until the writer stage exits or ctx ends, returning the stage error.
func (d *Daemon) Wait(ctx context.Context) error {
	return d.supervisor.Wait(ctx)
}

// MetricsAddr returns the bound metrics address, empty when disabled or stopped.
func (d *Daemon) MetricsAddr() string {
	if d.metricsSrv == nil {
		return ""
	}
	return d.metricsSrv.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Worker:       d.supervisor.State(),
		WorkerAlive:  d.supervisor.IsAlive(),
		QueueDepth:   d.queue.Len(),
		LockFilePath: d.lockPath,
		MetricsAddr:  d.MetricsAddr(),
	}
	if err := d.supervisor.Err(); err != nil {
		status.WorkerError = err.Error()
	}
	if d.store != nil {
		status.OutboxPath = d.store.Path()
	}
	return status
}

func (d *Daemon) productList() (*productlist.Config, error) {
	if d.cfg.Writer.ProductList == "" {
		return &productlist.Config{}, nil
	}
	return productlist.Load(d.cfg.Writer.ProductList)
}

func (d *Daemon) stopMetrics() {
	if d.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.metricsSrv.Stop(ctx); err != nil {
		d.logger.Debug("metrics server shutdown", logging.Error(err))
	}
}

// pruneLoop drops delivered outbox entries and ingested scene directories older
// than their retention windows, once at startup and then hourly.
func (d *Daemon) pruneLoop(ctx context.Context) {
	outboxRetention := time.Duration(d.cfg.Outbox.RetentionDays) * 24 * time.Hour
	doneRetention := time.Duration(d.cfg.Workflow.DoneRetentionDays) * 24 * time.Hour
	if (d.store == nil || outboxRetention <= 0) && doneRetention <= 0 {
		return
	}
	for {
		if d.store != nil && outboxRetention > 0 {
			d.pruneOutbox(ctx, outboxRetention)
		}
		if doneRetention > 0 {
			spool.CleanDone(ctx, d.cfg.Paths.DoneDir, doneRetention, d.logger)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Hour):
		}
	}
}

func (d *Daemon) pruneOutbox(ctx context.Context, retention time.Duration) {
	removed, err := d.store.Prune(ctx, time.Now().Add(-retention))
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "outbox prune failed", "outbox_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "outbox database keeps growing"),
		)
	} else if removed > 0 {
		d.logger.Info("outbox pruned",
			logging.String(logging.FieldEventType, "outbox_pruned"),
			logging.Int64("removed", removed),
		)
	}
}
