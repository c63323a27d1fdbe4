package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"l2writer/internal/fileutil"
	"l2writer/internal/lock"
	"l2writer/internal/logging"
	"l2writer/internal/productlist"
	"l2writer/internal/queue"
	"l2writer/internal/scene"
)

// Options configures an Ingester.
type Options struct {
	SpoolDir     string
	DoneDir      string
	PollInterval time.Duration
	// ProductList returns the product list to attach to each DataItem. It is
	// called once per poll so edits take effect without a restart.
	ProductList func() (*productlist.Config, error)
	Lock        lock.Coordinator
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Ingester turns scene directories into queue items.
type Ingester struct {
	opts   Options
	queue  *queue.Queue
	logger *slog.Logger
}

// New returns an ingester pushing to q.
func New(q *queue.Queue, opts Options) *Ingester {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ProductList == nil {
		opts.ProductList = func() (*productlist.Config, error) { return &productlist.Config{}, nil }
	}
	return &Ingester{
		opts:   opts,
		queue:  q,
		logger: logging.NewComponentLogger(opts.Logger, "spool"),
	}
}

// Run polls until ctx ends.
func (i *Ingester) Run(ctx context.Context) error {
	for {
		if _, err := i.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(i.logger, "spool poll failed", "spool_poll_failed",
				logging.String("spool_dir", i.opts.SpoolDir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check spool_dir and done_dir permissions"),
				logging.String(logging.FieldImpact, "scenes stay in the spool until the next poll"),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(i.opts.PollInterval):
		}
	}
}

// Poll ingests the scene directories currently in the spool and returns how many
// were queued. An EndOfBatch follows whenever at least one scene was queued.
func (i *Ingester) Poll(ctx context.Context) (int, error) {
	dirs, err := SceneDirs(i.opts.SpoolDir)
	if err != nil || len(dirs) == 0 {
		return 0, err
	}
	products, err := i.opts.ProductList()
	if err != nil {
		return 0, fmt.Errorf("load product list: %w", err)
	}

	var items []queue.DataItem
	err = lock.Hold(ctx, i.opts.Lock, i.opts.LockTimeout, func() error {
		for _, dir := range dirs {
			item, ierr := i.ingest(dir, products)
			if ierr != nil {
				logging.WarnWithContext(i.logger, "scene rejected", "scene_rejected",
					logging.String("path", dir),
					logging.Error(ierr),
					logging.String(logging.FieldErrorHint, "inspect scene.json in the done directory"),
					logging.String(logging.FieldImpact, "scene was not written"),
				)
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		if err := i.queue.Push(ctx, item); err != nil {
			return 0, err
		}
	}
	if len(items) > 0 {
		if err := i.queue.Push(ctx, queue.EndOfBatch{}); err != nil {
			return 0, err
		}
		i.logger.Info("scenes queued",
			logging.String(logging.FieldEventType, "scenes_queued"),
			logging.Int("scenes", len(items)),
		)
	}
	return len(items), nil
}

// ingest loads dir and moves it out of the spool. A directory that fails to load
// is moved as well so it is not retried forever.
func (i *Ingester) ingest(dir string, products *productlist.Config) (queue.DataItem, error) {
	scn, loadErr := scene.LoadDir(dir)
	target := filepath.Join(i.opts.DoneDir, filepath.Base(dir))
	if _, err := os.Stat(target); err == nil {
		target += "." + time.Now().UTC().Format("20060102T150405.000")
	}
	if err := fileutil.MoveDir(dir, target); err != nil {
		return queue.DataItem{}, errors.Join(loadErr, fmt.Errorf("move to done: %w", err))
	}
	if loadErr != nil {
		return queue.DataItem{}, loadErr
	}

	areaID, _ := scn.Attrs()["area_id"].(string)
	names := products.Products(areaID)
	if len(names) == 0 {
		names = scn.ProductNames()
	}
	i.logger.Debug("scene loaded",
		logging.String("path", target),
		logging.String("area_id", areaID),
		logging.Strings("products", names),
	)
	return queue.DataItem{Scene: scn, ProductConfig: products, Products: names}, nil
}

// SceneDirs lists the directories directly below root that hold a scene manifest,
// sorted by name. A missing root yields no directories.
func SceneDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, scene.ManifestName)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
