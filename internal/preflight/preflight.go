package preflight

import (
	"context"
	"maps"
	"slices"
	"strings"

	"l2writer/internal/config"
	"l2writer/internal/productlist"
	"l2writer/internal/writer"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Spool directory", cfg.Paths.SpoolDir),
		CheckDirectoryAccess("Done directory", cfg.Paths.DoneDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	if path := strings.TrimSpace(cfg.Writer.ProductList); path != "" {
		plist, result := CheckProductList(path)
		results = append(results, result)
		if plist != nil {
			for _, dir := range OutputDirs(plist) {
				results = append(results, CheckDirectoryAccess("Output directory", dir))
			}
		}
	}

	if cfg.Publisher.Enabled {
		results = append(results, CheckPublisher(ctx, cfg.Publisher))
	}
	if cfg.ObjectStore.Endpoint != "" {
		results = append(results, CheckObjectStore(ctx, cfg.ObjectStore))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// OutputDirs lists the fixed local output directories named in plist.
// Templated directories and object store URLs are skipped.
func OutputDirs(plist *productlist.Config) []string {
	seen := map[string]struct{}{}
	var dirs []string
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || strings.Contains(dir, "{") || writer.IsObjectURL(dir) {
			return
		}
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	add(plist.Common.OutputDir)
	for _, areaID := range slices.Sorted(maps.Keys(plist.ProductList)) {
		area := plist.ProductList[areaID]
		add(area.OutputDir)
		for _, name := range slices.Sorted(maps.Keys(area.Products)) {
			add(area.Products[name].OutputDir)
		}
	}
	return dirs
}
