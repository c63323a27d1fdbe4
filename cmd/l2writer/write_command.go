package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"l2writer/internal/config"
	"l2writer/internal/notify"
	"l2writer/internal/outbox"
	"l2writer/internal/productlist"
	"l2writer/internal/queue"
	"l2writer/internal/scene"
	"l2writer/internal/workflow"
	"l2writer/internal/writer"
)

type writeOptions struct {
	productList string
	topic       string
	products    []string
	noNotify    bool
}

func newWriteCommand(ctx *commandContext) *cobra.Command {
	var opts writeOptions
	cmd := &cobra.Command{
		Use:   "write <scene-dir>...",
		Short: "Write scene directories as one batch and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("product-list") {
				cfg.Writer.ProductList = opts.productList
			}
			if cmd.Flags().Changed("topic") {
				cfg.Writer.Topic = opts.topic
			}
			if opts.noNotify {
				cfg.Publisher.Enabled = false
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}
			logger, err := ctx.commandLogger(cfg)
			if err != nil {
				return err
			}

			summary, err := writeScenes(cmd.Context(), cfg, args, opts.products, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d scene(s) in %s\n", summary.scenes, summary.elapsed.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.productList, "product-list", "", "Product list YAML (overrides writer.product_list)")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Topic template (overrides writer.topic; empty disables messages)")
	cmd.Flags().StringSliceVarP(&opts.products, "product", "p", nil, "Products to write (default: product list or every product in the scene)")
	cmd.Flags().BoolVar(&opts.noNotify, "no-notify", false, "Do not publish notifications")
	return cmd
}

type writeSummary struct {
	scenes  int
	elapsed time.Duration
}

// writeScenes runs one writer stage over dirs as a single batch.
func writeScenes(ctx context.Context, cfg *config.Config, dirs, products []string, logger *slog.Logger) (writeSummary, error) {
	started := time.Now()

	plist := &productlist.Config{}
	if path := strings.TrimSpace(cfg.Writer.ProductList); path != "" {
		loaded, err := productlist.Load(path)
		if err != nil {
			return writeSummary{}, err
		}
		plist = loaded
	}

	items := make([]queue.Item, 0, len(dirs)+1)
	for _, dir := range dirs {
		scn, err := scene.LoadDir(dir)
		if err != nil {
			return writeSummary{}, fmt.Errorf("load %s: %w", filepath.Base(dir), err)
		}
		names := products
		if len(names) == 0 {
			areaID, _ := scn.Attrs()["area_id"].(string)
			names = plist.Products(areaID)
		}
		if len(names) == 0 {
			names = scn.ProductNames()
		}
		items = append(items, queue.DataItem{Scene: scn, ProductConfig: plist, Products: names})
	}
	items = append(items, queue.EndOfBatch{})

	delegate, err := writer.NewComputer(cfg, logger)
	if err != nil {
		return writeSummary{}, err
	}
	defer delegate.Close()

	opts := workflow.OptionsFromConfig(cfg)
	trap := &flushTrap{Delegate: delegate}
	opts.Delegate = trap
	opts.Connect = notify.NewConnector(cfg.Publisher, logger)
	opts.Logger = logger
	if cfg.Outbox.Enabled {
		store, err := outbox.Open(cfg.OutboxPath())
		if err != nil {
			return writeSummary{}, fmt.Errorf("open outbox: %w", err)
		}
		defer store.Close()
		opts.Journal = store
	}

	q := queue.New(len(items))
	sup := workflow.NewSupervisor(q, workflow.LockFromConfig(cfg), logger)
	if err := sup.Start(ctx, opts); err != nil {
		return writeSummary{}, err
	}
	defer sup.Stop()

	for _, item := range items {
		if err := q.Push(ctx, item); err != nil {
			return writeSummary{}, err
		}
	}
	if err := waitDrained(ctx, q, sup); err != nil {
		return writeSummary{}, err
	}
	if err := trap.Err(); err != nil {
		return writeSummary{}, fmt.Errorf("batch write failed: %w", err)
	}
	return writeSummary{scenes: len(dirs), elapsed: time.Since(started)}, nil
}

// waitDrained blocks until q is fully handled, returning early when the stage dies.
func waitDrained(ctx context.Context, q *queue.Queue, sup *workflow.Supervisor) error {
	for {
		joinCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		err := q.Join(joinCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !sup.IsAlive() {
			if serr := sup.Err(); serr != nil {
				return serr
			}
			return errors.New("writer stage exited before the batch was flushed")
		}
	}
}

// flushTrap remembers the last ExecuteAll failure, which the stage only logs.
type flushTrap struct {
	writer.Delegate

	mu  sync.Mutex
	err error
}

func (f *flushTrap) ExecuteAll(ctx context.Context, writes []*writer.Deferred) error {
	err := f.Delegate.ExecuteAll(ctx, writes)
	if err != nil {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
	}
	return err
}

func (f *flushTrap) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
