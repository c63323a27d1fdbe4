package spool_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"l2writer/internal/lock"
	"l2writer/internal/productlist"
	"l2writer/internal/queue"
	"l2writer/internal/spool"
	"l2writer/internal/testsupport"
)

var sceneAttrs = map[string]any{
	"platform_name": "NOAA-20",
	"area_id":       "euro4",
	"start_time":    "2024-03-01T12:30:00Z",
}

func popAll(t *testing.T, q *queue.Queue) []queue.Item {
	t.Helper()
	var items []queue.Item
	for {
		item, err := q.Pop(context.Background(), 10*time.Millisecond)
		if err != nil {
			return items
		}
		q.Done()
		items = append(items, item)
	}
}

func TestPollQueuesScenesAndMovesThem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSceneDir(t, filepath.Join(cfg.Paths.SpoolDir, "b"), sceneAttrs, "overview")
	testsupport.WriteSceneDir(t, filepath.Join(cfg.Paths.SpoolDir, "a"), sceneAttrs, "overview", "natural")
	if err := os.MkdirAll(filepath.Join(cfg.Paths.SpoolDir, "incomplete"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	q := queue.New(8)
	ing := spool.New(q, spool.Options{SpoolDir: cfg.Paths.SpoolDir, DoneDir: cfg.Paths.DoneDir})
	n, err := ing.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 scenes, got %d", n)
	}

	items := popAll(t, q)
	if len(items) != 3 {
		t.Fatalf("expected 2 data items and an end marker, got %d", len(items))
	}
	first, ok := items[0].(queue.DataItem)
	if !ok {
		t.Fatalf("expected DataItem first, got %T", items[0])
	}
	if !reflect.DeepEqual(first.Products, []string{"overview", "natural"}) {
		t.Fatalf("unexpected products for scene a: %v", first.Products)
	}
	if _, ok := items[2].(queue.EndOfBatch); !ok {
		t.Fatalf("expected EndOfBatch last, got %T", items[2])
	}

	for _, name := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.DoneDir, name, "scene.json")); err != nil {
			t.Fatalf("scene %s not moved: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(cfg.Paths.SpoolDir, name)); !os.IsNotExist(err) {
			t.Fatalf("scene %s still in spool", name)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.SpoolDir, "incomplete")); err != nil {
		t.Fatalf("directory without manifest should stay: %v", err)
	}
}

func TestPollUsesProductListForArea(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSceneDir(t, filepath.Join(cfg.Paths.SpoolDir, "s1"), sceneAttrs, "overview", "natural")

	products, err := productlist.Parse([]byte(`
product_list:
  euro4:
    products:
      overview: {}
      cloudtop: {}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	q := queue.New(8)
	ing := spool.New(q, spool.Options{
		SpoolDir:    cfg.Paths.SpoolDir,
		DoneDir:     cfg.Paths.DoneDir,
		ProductList: func() (*productlist.Config, error) { return products, nil },
	})
	if _, err := ing.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	items := popAll(t, q)
	item := items[0].(queue.DataItem)
	if !reflect.DeepEqual(item.Products, []string{"overview", "cloudtop"}) {
		t.Fatalf("expected configured products in document order, got %v", item.Products)
	}
	if item.ProductConfig != products {
		t.Fatal("expected product list attached to item")
	}
}

func TestPollEmptySpoolQueuesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := queue.New(2)
	ing := spool.New(q, spool.Options{SpoolDir: cfg.Paths.SpoolDir, DoneDir: cfg.Paths.DoneDir})
	n, err := ing.Poll(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Poll = %d, %v", n, err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected no items, got %d", q.Len())
	}
}

func TestPollRejectsBrokenManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SpoolDir, "bad", "scene.json"), []byte("{"))

	q := queue.New(2)
	ing := spool.New(q, spool.Options{SpoolDir: cfg.Paths.SpoolDir, DoneDir: cfg.Paths.DoneDir})
	n, err := ing.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 || q.Len() != 0 {
		t.Fatalf("broken scene queued: n=%d len=%d", n, q.Len())
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.DoneDir, "bad")); err != nil {
		t.Fatalf("broken scene not moved out of the spool: %v", err)
	}
}

func TestPollHoldsSharedLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSceneDir(t, filepath.Join(cfg.Paths.SpoolDir, "s1"), sceneAttrs, "overview")

	held := lock.NewMutex()
	if !held.TryAcquire() {
		t.Fatal("could not take lock")
	}
	q := queue.New(4)
	ing := spool.New(q, spool.Options{
		SpoolDir:    cfg.Paths.SpoolDir,
		DoneDir:     cfg.Paths.DoneDir,
		Lock:        held,
		LockTimeout: 30 * time.Millisecond,
	})
	if _, err := ing.Poll(context.Background()); err == nil {
		t.Fatal("expected lock timeout while the lock is held elsewhere")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.SpoolDir, "s1")); err != nil {
		t.Fatalf("scene moved without the lock: %v", err)
	}

	if err := held.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n, err := ing.Poll(context.Background()); err != nil || n != 1 {
		t.Fatalf("Poll after release = %d, %v", n, err)
	}
	if !held.TryAcquire() {
		t.Fatal("ingester did not release the lock")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ing := spool.New(queue.New(1), spool.Options{
		SpoolDir:     cfg.Paths.SpoolDir,
		DoneDir:      cfg.Paths.DoneDir,
		PollInterval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
