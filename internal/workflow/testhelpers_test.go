package workflow_test

import (
	"context"
	"testing"
	"time"

	"l2writer/internal/lock"
	"l2writer/internal/productlist"
	"l2writer/internal/queue"
	"l2writer/internal/scene"
	"l2writer/internal/testsupport"
	"l2writer/internal/workflow"
)

type harness struct {
	t         *testing.T
	events    *testsupport.Events
	delegate  *testsupport.RecordingDelegate
	publisher *testsupport.RecordingPublisher
	lock      *testsupport.RecordingLock
	queue     *queue.Queue
	sup       *workflow.Supervisor
	opts      workflow.Options
}

func newHarness(t *testing.T, mutate ...func(*harness)) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	events := &testsupport.Events{}
	h := &harness{
		t:         t,
		events:    events,
		delegate:  &testsupport.RecordingDelegate{Events: events},
		publisher: &testsupport.RecordingPublisher{Events: events},
		lock:      testsupport.NewRecordingLock(events),
		queue:     queue.New(16),
	}
	h.opts = workflow.OptionsFromConfig(cfg)
	h.opts.Delegate = h.delegate
	h.opts.Connect = h.publisher.Connector()
	h.opts.LockTimeout = 2 * time.Second

	for _, fn := range mutate {
		fn(h)
	}

	var coord lock.Coordinator
	if h.lock != nil {
		coord = h.lock
	}
	h.sup = workflow.NewSupervisor(h.queue, coord, nil)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.sup.Start(context.Background(), h.opts); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.t.Cleanup(h.sup.Stop)
}

func (h *harness) push(items ...queue.Item) {
	h.t.Helper()
	for _, item := range items {
		if err := h.queue.Push(context.Background(), item); err != nil {
			h.t.Fatalf("Push: %v", err)
		}
	}
}

// drain waits until every pushed item has been handled.
func (h *harness) drain() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.queue.Join(ctx); err != nil {
		h.t.Fatalf("queue not drained: %v", err)
	}
}

func dataItem(scn *scene.Scene, products *productlist.Config, names ...string) queue.DataItem {
	return queue.DataItem{Scene: scn, ProductConfig: products, Products: names}
}

func mustParseProducts(t *testing.T, doc string) *productlist.Config {
	t.Helper()
	cfg, err := productlist.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse product list: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func uids(t *testing.T, h *harness) []string {
	t.Helper()
	sent := h.publisher.Sent()
	out := make([]string, 0, len(sent))
	for _, m := range sent {
		uid, _ := m.Data["uid"].(string)
		out = append(out, uid)
	}
	return out
}
