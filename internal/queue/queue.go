package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"l2writer/internal/productlist"
	"l2writer/internal/scene"
)

// ErrEmpty is returned by Pop when no item arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// Item is a unit of work. The concrete types are DataItem and EndOfBatch.
type Item interface {
	isItem()
}

// DataItem asks the stage to persist Products of Scene according to ProductConfig.
type DataItem struct {
	Scene         *scene.Scene
	ProductConfig *productlist.Config
	Products      []string
}

// EndOfBatch closes the current logical group of DataItems.
type EndOfBatch struct{}

func (DataItem) isItem()   {}
func (EndOfBatch) isItem() {}

// Kind names an item for logs and metrics.
func Kind(item Item) string {
	switch item.(type) {
	case DataItem, *DataItem:
		return "data"
	case EndOfBatch, *EndOfBatch:
		return "end_of_batch"
	default:
		return "unknown"
	}
}

// Queue is a bounded FIFO of Items.
type Queue struct {
	items chan Item

	mu         sync.Mutex
	unfinished int
	drained    chan struct{}
}

// New returns a queue holding at most size items.
func New(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{items: make(chan Item, size), drained: make(chan struct{})}
	close(q.drained)
	return q
}

// Push appends item, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, item Item) error {
	if item == nil {
		return errors.New("queue: nil item")
	}
	q.mu.Lock()
	if q.unfinished == 0 {
		q.drained = make(chan struct{})
	}
	q.unfinished++
	q.mu.Unlock()

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		q.finish()
		return ctx.Err()
	}
}

// Pop removes the oldest item. It waits at most timeout and returns ErrEmpty when
// nothing arrived; ctx ending returns ctx.Err().
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.items:
		return item, nil
	case <-timer.C:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done marks one popped item as handled.
func (q *Queue) Done() {
	q.finish()
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.drained)
	}
}

// Join blocks until every pushed item has been marked Done.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of items waiting.
func (q *Queue) Len() int {
	return len(q.items)
}
