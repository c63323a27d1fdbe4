package writer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"l2writer/internal/config"
	"l2writer/internal/logging"
	"l2writer/internal/scene"
	"l2writer/internal/services"
)

// Delegate stages and executes deferred writes.
type Delegate interface {
	// Stage describes a write without performing any I/O.
	Stage(product *scene.Product, filename string, kind Kind, opts Options) (*Deferred, error)
	// ExecuteAll runs every staged write and blocks until all of them completed.
	ExecuteAll(ctx context.Context, writes []*Deferred) error
}

// Computer is the production Delegate.
type Computer struct {
	local       Sink
	object      Sink
	concurrency int
	logger      *slog.Logger
	closed      atomic.Bool
}

// NewComputer wires the local sink and, when an endpoint is configured, the object store sink.
func NewComputer(cfg *config.Config, logger *slog.Logger) (*Computer, error) {
	var object Sink
	if cfg.ObjectStore.Endpoint != "" {
		sink, err := NewObjectSink(cfg.ObjectStore)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "writer", "init object store", "Object store client could not be created", err)
		}
		object = sink
	}
	return New(LocalSink{}, object, cfg.Writer.Concurrency, logger), nil
}

// New builds a Computer from explicit sinks. object may be nil.
func New(local, object Sink, concurrency int, logger *slog.Logger) *Computer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Computer{
		local:       local,
		object:      object,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "writer"),
	}
}

// Stage validates the product payload against kind and returns a deferred write.
func (c *Computer) Stage(product *scene.Product, filename string, kind Kind, opts Options) (*Deferred, error) {
	if product == nil {
		return nil, services.Wrap(services.ErrValidation, "writer", "stage", "No product to stage", nil)
	}
	switch kind {
	case KindSimpleImage, KindJPEG:
		if product.Image == nil {
			return nil, services.Wrap(services.ErrValidation, "writer", "stage",
				fmt.Sprintf("Product %s has no image data for writer %s", product.Name, kind), nil)
		}
	case KindRaw:
		if product.Image == nil && product.Raw == nil {
			return nil, services.Wrap(services.ErrValidation, "writer", "stage",
				fmt.Sprintf("Product %s has no payload", product.Name), nil)
		}
	default:
		return nil, services.Wrap(services.ErrValidation, "writer", "stage", fmt.Sprintf("Unknown writer %q", kind), nil)
	}

	sink := c.local
	if IsObjectURL(filename) {
		if c.object == nil {
			return nil, services.Wrap(services.ErrValidation, "writer", "stage",
				fmt.Sprintf("Output %s requires object_store.endpoint", filename), nil)
		}
		if _, _, err := SplitObjectURL(filename); err != nil {
			return nil, services.Wrap(services.ErrValidation, "writer", "stage", "Invalid object url", err)
		}
		sink = c.object
	}

	run := func(ctx context.Context) error {
		return sink.Put(ctx, filename, kind.contentType(), func(w io.Writer) error {
			return encode(w, product, kind, opts)
		})
	}
	return NewDeferred(product.Name, filename, kind, run), nil
}

// ExecuteAll runs the writes with bounded parallelism. The first failure is
// returned after every started write has finished.
func (c *Computer) ExecuteAll(ctx context.Context, writes []*Deferred) error {
	if c.closed.Load() {
		return services.Wrap(services.ErrFatal, "writer", "execute", "Write delegate is closed", nil)
	}
	if len(writes) == 0 {
		return nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, d := range writes {
		g.Go(func() error {
			if err := d.Execute(gctx); err != nil {
				return fmt.Errorf("write %s: %w", d.Filename(), err)
			}
			c.logger.Debug("file written",
				logging.String(logging.FieldProduct, d.Product()),
				logging.String("filename", d.Filename()),
				logging.String("writer", string(d.Kind())),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return services.Wrap(services.ErrExternalTool, "writer", "execute", "Deferred writes failed", err)
	}
	c.logger.Debug("deferred writes complete",
		logging.Int("files", len(writes)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Close marks the delegate unusable. Later ExecuteAll calls fail fatally.
func (c *Computer) Close() error {
	c.closed.Store(true)
	return nil
}
