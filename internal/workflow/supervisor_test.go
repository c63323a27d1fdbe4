package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"l2writer/internal/queue"
	"l2writer/internal/testsupport"
	"l2writer/internal/workflow"
)

func TestStopWhileWaitingOnEmptyQueueReturnsPromptly(t *testing.T) {
	h := newHarness(t)
	h.start()
	waitFor(t, "draining", func() bool { return h.sup.State() == workflow.StateDraining })

	started := time.Now()
	h.sup.Stop()
	if elapsed := time.Since(started); elapsed > h.opts.PollTimeout+500*time.Millisecond {
		t.Fatalf("stop took %s", elapsed)
	}
	if h.sup.IsAlive() {
		t.Fatal("worker still alive after Stop")
	}
	if h.sup.State() != workflow.StateStopped {
		t.Fatalf("unexpected state %v", h.sup.State())
	}
	if err := h.sup.Err(); err != nil {
		t.Fatalf("clean stop reported %v", err)
	}
	if !h.publisher.Closed() {
		t.Fatal("publisher not closed on stop")
	}
}

func TestWorkerWithoutQueueIdlesUntilBound(t *testing.T) {
	h := newHarness(t)
	h.sup.RebindQueue(nil)
	h.start()

	waitFor(t, "idle", func() bool { return h.sup.State() == workflow.StateIdle })

	h.sup.RebindQueue(h.queue)
	h.push(dataItem(testsupport.NewScene([]string{"A"}), nil, "A"), queue.EndOfBatch{})
	h.drain()
	if len(h.publisher.Sent()) != 1 {
		t.Fatalf("expected 1 message after binding, got %d", len(h.publisher.Sent()))
	}
}

func TestRebindQueueSwitchesSource(t *testing.T) {
	h := newHarness(t)
	h.start()

	next := queue.New(4)
	h.sup.RebindQueue(next)
	// Let any in-flight pop on the old queue time out.
	time.Sleep(3 * h.opts.PollTimeout)

	ctx := context.Background()
	scn := testsupport.NewScene([]string{"A"})
	if err := next.Push(ctx, dataItem(scn, nil, "A")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := next.Push(ctx, queue.EndOfBatch{}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := next.Join(joinCtx); err != nil {
		t.Fatalf("rebound queue not drained: %v", err)
	}
	if len(h.publisher.Sent()) != 1 {
		t.Fatalf("expected 1 message from rebound queue, got %d", len(h.publisher.Sent()))
	}
}

func TestRestartLeavesExactlyOneWorker(t *testing.T) {
	h := newHarness(t)
	h.start()

	for i := 0; i < 3; i++ {
		if err := h.sup.Restart(context.Background(), h.opts); err != nil {
			t.Fatalf("Restart %d: %v", i, err)
		}
		if !h.sup.IsAlive() {
			t.Fatalf("no worker alive after restart %d", i)
		}
	}
	if err := h.sup.Start(context.Background(), h.opts); !errors.Is(err, workflow.ErrRunning) {
		t.Fatalf("expected ErrRunning from second Start, got %v", err)
	}

	scn := testsupport.NewScene([]string{"A"})
	h.push(dataItem(scn, nil, "A"), queue.EndOfBatch{})
	h.drain()
	if n := h.events.Count("execute_all:begin"); n != 1 {
		t.Fatalf("expected a single worker to flush once, got %d", n)
	}
	if len(h.publisher.Sent()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(h.publisher.Sent()))
	}
}

func TestRestartRacingStartKeepsOneWorker(t *testing.T) {
	h := newHarness(t)
	h.start()

	var wg sync.WaitGroup
	restartErrs := make(chan error, 10)
	startErrs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			restartErrs <- h.sup.Restart(context.Background(), h.opts)
		}()
		go func() {
			defer wg.Done()
			startErrs <- h.sup.Start(context.Background(), h.opts)
		}()
	}
	wg.Wait()
	close(restartErrs)
	close(startErrs)

	for err := range restartErrs {
		if err != nil {
			t.Fatalf("Restart: %v", err)
		}
	}
	for err := range startErrs {
		if !errors.Is(err, workflow.ErrRunning) {
			t.Fatalf("expected ErrRunning from Start, got %v", err)
		}
	}
	if !h.sup.IsAlive() {
		t.Fatal("no worker alive after concurrent restarts")
	}

	h.push(dataItem(testsupport.NewScene([]string{"A"}), nil, "A"), queue.EndOfBatch{})
	h.drain()
	if n := h.events.Count("execute_all:begin"); n != 1 {
		t.Fatalf("expected a single worker to flush once, got %d", n)
	}
}

func TestRestartOnStoppedSupervisorStarts(t *testing.T) {
	h := newHarness(t)
	t.Cleanup(h.sup.Stop)
	if h.sup.IsAlive() {
		t.Fatal("supervisor alive before start")
	}
	h.sup.Stop()
	if err := h.sup.Restart(context.Background(), h.opts); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !h.sup.IsAlive() {
		t.Fatal("expected worker after Restart")
	}
}

func TestStopLetsItemInFlightFinish(t *testing.T) {
	h := newHarness(t)
	h.delegate.ExecuteDelay = 100 * time.Millisecond
	h.start()

	h.push(dataItem(testsupport.NewScene([]string{"A"}), nil, "A"), queue.EndOfBatch{})
	waitFor(t, "flush start", func() bool { return h.events.Count("execute_all:begin") == 1 })
	h.sup.Stop()

	if h.events.Count("execute_all:end") != 1 {
		t.Fatalf("flush abandoned: %v", h.events.List())
	}
	if len(h.publisher.Sent()) != 1 {
		t.Fatalf("messages of the finished flush were not sent: %d", len(h.publisher.Sent()))
	}
	if h.events.Count("lock:acquire") != h.events.Count("lock:release") {
		t.Fatalf("lock leaked on stop: %v", h.events.List())
	}
}
