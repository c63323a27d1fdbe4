package writer

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrConsumed is returned when a deferred write is executed a second time.
var ErrConsumed = errors.New("deferred write already executed")

// Deferred is a staged persistence operation for one (product, filename) pair.
// It runs at most once.
type Deferred struct {
	product  string
	filename string
	kind     Kind
	consumed atomic.Bool
	run      func(context.Context) error
}

// NewDeferred wraps run as a single-use deferred write.
func NewDeferred(product, filename string, kind Kind, run func(context.Context) error) *Deferred {
	return &Deferred{product: product, filename: filename, kind: kind, run: run}
}

func (d *Deferred) Product() string  { return d.product }
func (d *Deferred) Filename() string { return d.filename }
func (d *Deferred) Kind() Kind       { return d.kind }

// Consumed reports whether Execute has been called.
func (d *Deferred) Consumed() bool { return d.consumed.Load() }

// Execute performs the write. Subsequent calls return ErrConsumed.
func (d *Deferred) Execute(ctx context.Context) error {
	if !d.consumed.CompareAndSwap(false, true) {
		return ErrConsumed
	}
	if d.run == nil {
		return nil
	}
	return d.run(ctx)
}
