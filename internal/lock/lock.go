package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"l2writer/internal/services"
)

var (
	// ErrNotHeld is returned when releasing a lock that is not held.
	ErrNotHeld = errors.New("lock not held")
	// ErrTimeout is returned when the previous stage keeps the lock past the wait bound.
	ErrTimeout = errors.New("lock acquisition timed out")
)

// Coordinator is an advisory lock shared between adjacent stages.
type Coordinator interface {
	// Acquire blocks until the lock is held or ctx ends.
	Acquire(ctx context.Context) error
	Release() error
}

// Mutex is an in-process Coordinator.
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

func (m *Mutex) Acquire(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutex) Release() error {
	select {
	case <-m.ch:
		return nil
	default:
		return ErrNotHeld
	}
}

// TryAcquire takes the lock without waiting.
func (m *Mutex) TryAcquire() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Mutex) String() string { return "mutex" }

// File is a Coordinator backed by a lock file, so it also excludes other processes.
type File struct {
	path  string
	retry time.Duration
	local *Mutex
	fl    *flock.Flock
}

// NewFile returns a Coordinator for path. retry is the polling interval used while
// another process holds the file lock.
func NewFile(path string, retry time.Duration) *File {
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &File{path: path, retry: retry, local: NewMutex(), fl: flock.New(path)}
}

func (f *File) Acquire(ctx context.Context) error {
	// flock(2) is per open file; goroutines sharing this File are ordered by local.
	if err := f.local.Acquire(ctx); err != nil {
		return err
	}
	ok, err := f.fl.TryLockContext(ctx, f.retry)
	if err != nil || !ok {
		_ = f.local.Release()
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("lock %s unavailable", f.path)
		}
		return err
	}
	return nil
}

func (f *File) Release() error {
	if !f.fl.Locked() {
		return ErrNotHeld
	}
	err := f.fl.Unlock()
	if rerr := f.local.Release(); err == nil {
		err = rerr
	}
	return err
}

func (f *File) String() string { return f.path }

// ReleaseAll releases every lock and reports all failures.
func ReleaseAll(locks ...Coordinator) error {
	var errs []error
	for _, c := range locks {
		if c == nil {
			continue
		}
		if err := c.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hold acquires c, runs fn, and releases c however fn returns, panics included.
// timeout bounds the wait for the lock; zero waits until ctx ends. A timeout is
// fatal to the caller because the previous stage is presumed stuck. A nil c runs fn
// without locking.
func Hold(ctx context.Context, c Coordinator, timeout time.Duration, fn func() error) (err error) {
	if c == nil {
		return fn()
	}

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if aerr := c.Acquire(acquireCtx); aerr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(aerr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrFatal, "lock", "acquire",
				fmt.Sprintf("Previous stage held the lock longer than %s", timeout),
				ErrTimeout)
		}
		return services.Wrap(services.ErrFatal, "lock", "acquire", "Lock coordinator failed", aerr)
	}

	defer func() {
		if rerr := ReleaseAll(c); rerr != nil && err == nil {
			err = services.Wrap(services.ErrFatal, "lock", "release", "Lock could not be released", rerr)
		}
	}()
	return fn()
}
