package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"l2writer/internal/compose"
	"l2writer/internal/lock"
	"l2writer/internal/logging"
	"l2writer/internal/metadata"
	"l2writer/internal/notify"
	"l2writer/internal/productlist"
	"l2writer/internal/queue"
	"l2writer/internal/scene"
	"l2writer/internal/services"
	"l2writer/internal/writer"
)

const (
	stageName   = "writer"
	replayLimit = 256
)

// Worker drains the bound queue and flushes batches. A Worker runs once; the
// Supervisor builds a new one for every start.
type Worker struct {
	opts     Options
	bindings *Bindings
	batch    *Batch
	state    atomic.Int32
	logger   *slog.Logger

	publisher notify.Publisher
}

// NewWorker prepares a Worker reading its queue and lock from bindings.
func NewWorker(bindings *Bindings, opts Options) *Worker {
	opts = opts.withDefaults()
	w := &Worker{
		opts:     opts,
		bindings: bindings,
		batch:    NewBatch(),
		logger:   logging.NewComponentLogger(opts.Logger, "workflow"),
	}
	w.setState(StateIdle)
	return w
}

// State reports the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.opts.Metrics.SetState(int(s))
}

// Run drains items until ctx is cancelled or a fatal error occurs. Cancellation
// returns nil. The batch in progress is dropped on return.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer w.setState(StateStopped)
	if w.opts.Delegate == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "run", "No write delegate configured", nil)
	}
	ctx = services.WithStage(ctx, stageName)

	publisher, err := w.opts.Connect(ctx)
	if err != nil {
		return services.Wrap(services.ErrFatal, stageName, "connect", "Notification channel unavailable", err)
	}
	w.publisher = publisher
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			w.logger.Warn("publisher close failed",
				logging.Error(cerr),
				logging.String(logging.FieldEventType, "publisher_close_failed"),
				logging.String(logging.FieldErrorHint, "check the NATS connection"),
				logging.String(logging.FieldImpact, "buffered notifications may not have been flushed"),
			)
		}
	}()

	w.replay(ctx)
	w.logger.Info("worker started", logging.String(logging.FieldEventType, "worker_started"))

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))
			return nil
		}

		q := w.bindings.Queue()
		if q == nil {
			w.setState(StateIdle)
			select {
			case <-ctx.Done():
			case <-time.After(w.opts.IdleWait):
			}
			continue
		}

		w.setState(StateDraining)
		item, perr := q.Pop(ctx, w.opts.PollTimeout)
		if perr != nil {
			if errors.Is(perr, queue.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			w.logger.Warn("queue read failed",
				logging.Error(perr),
				logging.String(logging.FieldEventType, "queue_read_failed"),
				logging.String(logging.FieldErrorHint, "check the upstream stage"),
				logging.String(logging.FieldImpact, "worker retries after the idle wait"),
			)
			continue
		}
		herr := w.handle(ctx, item)
		q.Done()
		if herr != nil {
			if ctx.Err() != nil && errors.Is(herr, context.Canceled) {
				continue
			}
			if services.IsFatal(herr) {
				logging.ErrorWithContext(w.logger, "worker stopping on fatal error", "worker_fatal",
					logging.Error(herr),
					logging.String(logging.FieldErrorHint, "restart the stage once the cause is resolved"),
				)
				return herr
			}
			logging.WarnWithContext(w.logger, "item failed", "item_failed",
				logging.String("item", queue.Kind(item)),
				logging.String("error_kind", services.Kind(herr)),
				logging.Error(herr),
				logging.String(logging.FieldImpact, "the item was skipped"),
			)
		}
	}
}

func (w *Worker) handle(ctx context.Context, item queue.Item) error {
	w.opts.Metrics.ItemProcessed(queue.Kind(item))
	coord := w.bindings.Lock()
	waitStart := time.Now()
	return lock.Hold(ctx, coord, w.opts.LockTimeout, func() error {
		if coord != nil {
			w.opts.Metrics.LockWaited(time.Since(waitStart))
		}
		switch v := item.(type) {
		case queue.DataItem:
			return w.process(ctx, &v)
		case *queue.DataItem:
			return w.process(ctx, v)
		case queue.EndOfBatch, *queue.EndOfBatch:
			return w.flush(ctx)
		default:
			return services.Wrap(services.ErrValidation, stageName, "dispatch", fmt.Sprintf("Unknown item %T", item), nil)
		}
	})
}

// process stages one deferred write and at most one message per (product, filename).
func (w *Worker) process(ctx context.Context, item *queue.DataItem) error {
	if item == nil || item.Scene == nil {
		return services.Wrap(services.ErrValidation, stageName, "process", "Data item carries no scene", nil)
	}
	meta := item.Scene.Attrs()
	areaID, _ := meta["area_id"].(string)
	products := item.ProductConfig
	if products == nil {
		products = &productlist.Config{}
	}
	logger := logging.WithContext(ctx, w.logger)

	for _, name := range item.Products {
		product, ok := item.Scene.Product(name)
		if !ok {
			logger.Debug("product not in scene", logging.String(logging.FieldProduct, name))
			w.opts.Metrics.ProductSkipped("absent")
			continue
		}

		fnames, productName, err := products.Filenames(meta, areaID, name)
		if err != nil {
			logging.WarnWithContext(logger, "filename template failed", "filename_template_failed",
				logging.String(logging.FieldProduct, name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check fname_pattern and output_dir in the product list"),
				logging.String(logging.FieldImpact, "product skipped"),
			)
			w.opts.Metrics.ProductSkipped("template")
			continue
		}
		kinds := products.WriterKinds(areaID, name)

		for i, fname := range fnames {
			kind := writer.KindFor(filepath.Ext(fname))
			if i < len(kinds) {
				kind = kinds[i]
			}
			deferred, err := w.opts.Delegate.Stage(product, fname, kind, w.opts.Save)
			if err != nil {
				if services.IsFatal(err) {
					return err
				}
				logging.WarnWithContext(logger, "stage write failed", "stage_failed",
					logging.String(logging.FieldProduct, name),
					logging.String("filename", fname),
					logging.Error(err),
					logging.String(logging.FieldImpact, "file skipped"),
				)
				w.opts.Metrics.ProductSkipped("stage")
				continue
			}
			w.batch.Add(deferred, w.buildMessage(logger, meta, product, fname, productName))
		}
	}
	logger.Debug("data item staged",
		logging.Int("staged", w.batch.Len()),
		logging.Int("pending_messages", len(w.batch.Messages())),
	)
	return nil
}

// buildMessage returns nil when no topic is configured or the topic cannot be composed.
func (w *Worker) buildMessage(logger *slog.Logger, meta map[string]any, product *scene.Product, fname, productName string) *notify.Message {
	if w.opts.Topic == "" {
		return nil
	}

	var areaValue any
	topicData := map[string]any{"area_id": w.opts.FallbackAreaID}
	if area, ok := product.Area(); ok {
		areaValue = area.Map()
		topicData = area.Map()
	}
	topic, err := compose.Compose(w.opts.Topic, topicData)
	if err != nil {
		logging.WarnWithContext(logger, "topic template failed", "topic_template_failed",
			logging.String(logging.FieldProduct, product.Name),
			logging.String("topic", w.opts.Topic),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "topic placeholders must be area fields"),
			logging.String(logging.FieldImpact, "file is written without a notification"),
		)
		return nil
	}

	payload := metadata.Select(meta, w.opts.PublishVars)
	payload["nominal_time"] = nominalTime(meta)
	payload["uid"] = filepath.Base(fname)
	payload["uri"] = locationOf(fname)
	payload["area"] = areaValue
	payload["productname"] = productName

	msg := notify.NewMessage(notify.CleanTopic(topic), notify.TypeFile, payload)
	return &msg
}

func nominalTime(meta map[string]any) any {
	for _, key := range []string{"start_time", "time", "nominal_time"} {
		if v, ok := meta[key]; ok {
			return v
		}
	}
	return nil
}

func locationOf(fname string) string {
	if writer.IsObjectURL(fname) {
		return fname
	}
	if abs, err := filepath.Abs(fname); err == nil {
		return abs
	}
	return fname
}

// flush executes every staged write, then journals and sends the batch messages in
// recording order. The batch is cleared however flush returns.
func (w *Worker) flush(ctx context.Context) error {
	defer w.batch.Reset()
	if w.batch.Empty() {
		return nil
	}

	ctx = services.WithBatchID(ctx, w.batch.ID())
	logger := logging.WithContext(ctx, w.logger)
	runCtx := context.WithoutCancel(ctx)
	started := time.Now()

	writes := w.batch.Writes()
	if err := w.opts.Delegate.ExecuteAll(runCtx, writes); err != nil {
		w.opts.Metrics.WriteFailed()
		logging.ErrorWithContext(logger, "batch write failed", "batch_write_failed",
			logging.Int("files", len(writes)),
			logging.Int("dropped_messages", len(w.batch.Messages())),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the output location and rerun the batch upstream"),
		)
		return err
	}

	msgs := w.batch.Messages()
	ids := w.journal(runCtx, logger, msgs)
	sent := 0
	for i, msg := range msgs {
		var id int64
		if i < len(ids) {
			id = ids[i]
		}
		if w.send(runCtx, logger, msg, id) {
			sent++
		}
	}

	elapsed := time.Since(started)
	w.opts.Metrics.BatchFlushed(len(writes), elapsed)
	logger.Info("batch flushed",
		logging.String(logging.FieldEventType, "batch_flushed"),
		logging.Int("files", len(writes)),
		logging.Int("messages", len(msgs)),
		logging.Int("sent", sent),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

// journal records msgs before sending. It returns nil ids when there is no journal
// or it failed; sending proceeds either way.
func (w *Worker) journal(ctx context.Context, logger *slog.Logger, msgs []notify.Message) []int64 {
	if w.opts.Journal == nil || len(msgs) == 0 {
		return nil
	}
	ids, err := w.opts.Journal.Record(ctx, w.batch.ID(), msgs)
	if err != nil {
		logging.WarnWithContext(logger, "outbox record failed", "outbox_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory"),
			logging.String(logging.FieldImpact, "failed notifications cannot be replayed"),
		)
		return nil
	}
	return ids
}

func (w *Worker) send(ctx context.Context, logger *slog.Logger, msg notify.Message, id int64) bool {
	err := w.publisher.Send(ctx, msg)
	if err != nil {
		w.opts.Metrics.SendFailed()
		logging.WarnWithContext(logger, "notification send failed", "send_failed",
			logging.String("topic", msg.Topic),
			logging.String("message_id", msg.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "replay with 'l2writer outbox replay'"),
			logging.String(logging.FieldImpact, "downstream consumers were not notified"),
		)
	} else {
		w.opts.Metrics.MessageSent()
	}
	if w.opts.Journal == nil || id == 0 {
		return err == nil
	}
	var jerr error
	if err != nil {
		jerr = w.opts.Journal.MarkFailed(ctx, id, err)
	} else {
		jerr = w.opts.Journal.MarkSent(ctx, id)
	}
	if jerr != nil {
		logger.Debug("outbox update failed", logging.Int64("entry", id), logging.Error(jerr))
	}
	return err == nil
}

// replay resends journal entries left unsent by an earlier run.
func (w *Worker) replay(ctx context.Context) {
	if w.opts.Journal == nil {
		return
	}
	entries, err := w.opts.Journal.Pending(ctx, replayLimit)
	if err != nil {
		logging.WarnWithContext(w.logger, "outbox read failed", "outbox_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "pending notifications were not replayed"),
		)
		return
	}
	if len(entries) == 0 {
		return
	}
	sent := 0
	for _, entry := range entries {
		msg, err := entry.Message()
		if err != nil {
			w.logger.Debug("skipping undecodable outbox entry", logging.Int64("entry", entry.ID), logging.Error(err))
			continue
		}
		if w.send(ctx, w.logger, msg, entry.ID) {
			sent++
		}
	}
	w.logger.Info("outbox replayed",
		logging.String(logging.FieldEventType, "outbox_replayed"),
		logging.Int("pending", len(entries)),
		logging.Int("sent", sent),
	)
}
