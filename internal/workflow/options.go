package workflow

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"l2writer/internal/config"
	"l2writer/internal/lock"
	"l2writer/internal/metrics"
	"l2writer/internal/notify"
	"l2writer/internal/outbox"
	"l2writer/internal/queue"
	"l2writer/internal/writer"
)

// Journal persists notifications between the writes of a batch and their delivery.
// *outbox.Store implements it.
type Journal interface {
	Record(ctx context.Context, batchID string, msgs []notify.Message) ([]int64, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause error) error
	Pending(ctx context.Context, limit int) ([]outbox.Entry, error)
}

// Options configures a Worker.
type Options struct {
	Delegate       writer.Delegate
	Connect        notify.Connector
	Journal        Journal
	Save           writer.Options
	Topic          string
	FallbackAreaID string
	PublishVars    map[string]string
	PollTimeout    time.Duration
	IdleWait       time.Duration
	LockTimeout    time.Duration
	Metrics        *metrics.Stage
	Logger         *slog.Logger
}

// OptionsFromConfig fills the configuration-derived fields. Delegate, Connect,
// Journal, Metrics, and Logger are left for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Save:           writer.OptionsFromConfig(cfg.Save),
		Topic:          cfg.Writer.Topic,
		FallbackAreaID: cfg.Writer.FallbackAreaID,
		PublishVars:    maps.Clone(cfg.Writer.PublishVars),
		PollTimeout:    time.Duration(cfg.Workflow.PollTimeoutMS) * time.Millisecond,
		IdleWait:       time.Duration(cfg.Workflow.IdleWaitMS) * time.Millisecond,
		LockTimeout:    time.Duration(cfg.Lock.AcquireTimeout) * time.Second,
	}
}

// LockFromConfig returns the coordinator described by the [lock] section, or nil
// when locking is disabled.
func LockFromConfig(cfg *config.Config) lock.Coordinator {
	if !cfg.Lock.Enabled {
		return nil
	}
	if cfg.Lock.Path == "" {
		return lock.NewMutex()
	}
	return lock.NewFile(cfg.Lock.Path, time.Duration(cfg.Lock.RetryDelayMS)*time.Millisecond)
}

func (o Options) withDefaults() Options {
	if o.Connect == nil {
		o.Connect = func(context.Context) (notify.Publisher, error) { return notify.Noop{}, nil }
	}
	if o.FallbackAreaID == "" {
		o.FallbackAreaID = "satproj"
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.IdleWait <= 0 {
		o.IdleWait = time.Second
	}
	return o
}

type lockRef struct {
	c lock.Coordinator
}

// Bindings holds the queue and lock references a Worker reads at the top of each
// iteration. Swaps are atomic.
type Bindings struct {
	queue atomic.Pointer[queue.Queue]
	lock  atomic.Pointer[lockRef]
}

// NewBindings returns bindings for q and c; either may be nil.
func NewBindings(q *queue.Queue, c lock.Coordinator) *Bindings {
	b := &Bindings{}
	b.BindQueue(q)
	b.BindLock(c)
	return b
}

func (b *Bindings) BindQueue(q *queue.Queue) { b.queue.Store(q) }

func (b *Bindings) BindLock(c lock.Coordinator) { b.lock.Store(&lockRef{c: c}) }

func (b *Bindings) Queue() *queue.Queue { return b.queue.Load() }

func (b *Bindings) Lock() lock.Coordinator {
	if ref := b.lock.Load(); ref != nil {
		return ref.c
	}
	return nil
}
