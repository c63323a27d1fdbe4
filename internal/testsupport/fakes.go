package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"l2writer/internal/lock"
	"l2writer/internal/notify"
	"l2writer/internal/scene"
	"l2writer/internal/writer"
)

// Events is an ordered, concurrency-safe log of collaborator calls shared by the
// recording fakes so tests can assert cross-collaborator ordering.
type Events struct {
	mu     sync.Mutex
	events []string
}

func (e *Events) Add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

func (e *Events) List() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *Events) Count(event string) int {
	n := 0
	for _, ev := range e.List() {
		if ev == event {
			n++
		}
	}
	return n
}

// RecordingDelegate stages deferred writes that only record their execution.
type RecordingDelegate struct {
	Events *Events
	// ExecuteErr, when set, fails ExecuteAll after the writes ran.
	ExecuteErr error
	// StageErr, when set, fails every Stage call.
	StageErr error
	// ExecuteDelay stretches ExecuteAll so tests can observe ordering.
	ExecuteDelay time.Duration

	mu       sync.Mutex
	staged   []*writer.Deferred
	executed [][]string
}

func (d *RecordingDelegate) Stage(product *scene.Product, filename string, kind writer.Kind, _ writer.Options) (*writer.Deferred, error) {
	if d.StageErr != nil {
		return nil, d.StageErr
	}
	d.record("stage:%s", filename)
	deferred := writer.NewDeferred(product.Name, filename, kind, func(context.Context) error {
		d.record("write:%s", filename)
		return nil
	})
	d.mu.Lock()
	d.staged = append(d.staged, deferred)
	d.mu.Unlock()
	return deferred, nil
}

func (d *RecordingDelegate) ExecuteAll(ctx context.Context, writes []*writer.Deferred) error {
	d.record("execute_all:begin")
	names := make([]string, 0, len(writes))
	for _, w := range writes {
		if err := w.Execute(ctx); err != nil {
			return err
		}
		names = append(names, w.Filename())
	}
	if d.ExecuteDelay > 0 {
		time.Sleep(d.ExecuteDelay)
	}
	d.mu.Lock()
	d.executed = append(d.executed, names)
	d.mu.Unlock()
	d.record("execute_all:end")
	return d.ExecuteErr
}

// Staged returns every deferred write handed out so far.
func (d *RecordingDelegate) Staged() []*writer.Deferred {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*writer.Deferred(nil), d.staged...)
}

// Executed returns the filenames of each ExecuteAll call.
func (d *RecordingDelegate) Executed() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.executed...)
}

func (d *RecordingDelegate) record(format string, args ...any) {
	if d.Events != nil {
		d.Events.Add(format, args...)
	}
}

// RecordingPublisher keeps every sent message.
type RecordingPublisher struct {
	Events  *Events
	SendErr error

	mu     sync.Mutex
	sent   []notify.Message
	closed bool
}

func (p *RecordingPublisher) Send(_ context.Context, m notify.Message) error {
	if p.Events != nil {
		p.Events.Add("send:%s", m.Data["uid"])
	}
	if p.SendErr != nil {
		return p.SendErr
	}
	p.mu.Lock()
	p.sent = append(p.sent, m)
	p.mu.Unlock()
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *RecordingPublisher) Sent() []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Message(nil), p.sent...)
}

func (p *RecordingPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Connector returns a notify.Connector handing out p.
func (p *RecordingPublisher) Connector() notify.Connector {
	return func(context.Context) (notify.Publisher, error) { return p, nil }
}

// RecordingLock wraps a coordinator and logs acquire and release.
type RecordingLock struct {
	lock.Coordinator
	Events *Events
}

// NewRecordingLock wraps a fresh in-process mutex.
func NewRecordingLock(events *Events) *RecordingLock {
	return &RecordingLock{Coordinator: lock.NewMutex(), Events: events}
}

func (l *RecordingLock) Acquire(ctx context.Context) error {
	if err := l.Coordinator.Acquire(ctx); err != nil {
		return err
	}
	l.Events.Add("lock:acquire")
	return nil
}

func (l *RecordingLock) Release() error {
	l.Events.Add("lock:release")
	return l.Coordinator.Release()
}
