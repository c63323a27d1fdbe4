package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"l2writer/internal/lock"
	"l2writer/internal/logging"
	"l2writer/internal/queue"
)

// ErrRunning is returned by Start when a worker is already running.
var ErrRunning = errors.New("worker already running")

// Supervisor owns the lifecycle of a single Worker.
type Supervisor struct {
	bindings *Bindings
	logger   *slog.Logger

	// life serializes Start, Stop, and Restart.
	life sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	worker *Worker
	err    error
	alive  atomic.Bool
}

// NewSupervisor returns a stopped supervisor bound to q and l. Either may be nil
// and bound later.
func NewSupervisor(q *queue.Queue, l lock.Coordinator, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		bindings: NewBindings(q, l),
		logger:   logging.NewComponentLogger(logger, "supervisor"),
	}
}

// Start launches a worker in the background.
func (s *Supervisor) Start(ctx context.Context, opts Options) error {
	s.life.Lock()
	defer s.life.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, opts)
}

func (s *Supervisor) startLocked(ctx context.Context, opts Options) error {
	if s.alive.Load() {
		return ErrRunning
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}

	runCtx, cancel := context.WithCancel(ctx)
	worker := NewWorker(s.bindings, opts)
	done := make(chan struct{})

	s.cancel = cancel
	s.done = done
	s.worker = worker
	s.err = nil
	s.alive.Store(true)

	go func() {
		defer close(done)
		defer s.alive.Store(false)
		err := worker.Run(runCtx)
		s.mu.Lock()
		if s.done == done {
			s.err = err
		}
		s.mu.Unlock()
		if err != nil {
			logging.ErrorWithContext(s.logger, "worker exited", "worker_exited",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the stage once the cause is resolved"),
			)
		}
	}()
	return nil
}

// Stop requests shutdown and waits for the worker to exit. The item in progress,
// if any, is finished first. Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.life.Lock()
	defer s.life.Unlock()
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	s.stop(cancel, done)
}

func (s *Supervisor) stop(cancel context.CancelFunc, done chan struct{}) {
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Restart stops the current worker, if any, and starts a fresh one with opts.
// Queue and lock bindings carry over. A Start racing with Restart waits for it
// and then reports ErrRunning.
func (s *Supervisor) Restart(ctx context.Context, opts Options) error {
	s.life.Lock()
	defer s.life.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, done := s.cancel, s.done
	if cancel != nil {
		cancel()
	}
	if done != nil {
		// The worker goroutine takes s.mu to record its result; release while joining.
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
	return s.startLocked(ctx, opts)
}

// RebindQueue points the worker at q from its next iteration on.
func (s *Supervisor) RebindQueue(q *queue.Queue) {
	s.bindings.BindQueue(q)
	s.logger.Debug("queue rebound")
}

// RebindLock points the worker at l from its next iteration on. An iteration
// already holding the previous lock releases that one.
func (s *Supervisor) RebindLock(l lock.Coordinator) {
	s.bindings.BindLock(l)
	s.logger.Debug("lock rebound")
}

// IsAlive reports whether a worker is running.
func (s *Supervisor) IsAlive() bool {
	return s.alive.Load()
}

// Err returns the error the last worker exited with, nil after a clean stop.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the current worker exits or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the state of the current worker.
func (s *Supervisor) State() State {
	s.mu.Lock()
	worker := s.worker
	s.mu.Unlock()
	if worker == nil {
		return StateStopped
	}
	return worker.State()
}
