package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"l2writer/internal/logging"
)

// DirInfo describes one scene directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// CleanResult lists the done directories removed by CleanDone. Err joins every
// removal failure.
type CleanResult struct {
	Removed []string
	Err     error
}

// CleanDone removes ingested scene directories under doneDir last modified more
// than maxAge ago. A non-positive maxAge keeps everything.
func CleanDone(ctx context.Context, doneDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	var result CleanResult
	if maxAge <= 0 {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	dirs, err := scanDirs(doneDir, false)
	if err != nil {
		result.Err = err
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	var errs []error
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !dir.ModTime.Before(cutoff) {
			// sorted oldest first
			break
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir.Path, err))
			logging.WarnWithContext(logger, "failed to remove done scene", "done_cleanup_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check done_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
	}
	result.Err = errors.Join(errs...)

	if len(result.Removed) > 0 {
		logger.Info("done scenes removed",
			logging.String(logging.FieldEventType, "done_cleanup"),
			logging.Int("removed", len(result.Removed)),
			logging.Duration("retention", maxAge),
		)
	}
	return result
}

// ListDirs returns the scene directories under root with their sizes, oldest first.
// A missing root yields no directories.
func ListDirs(root string) ([]DirInfo, error) {
	return scanDirs(root, true)
}

func scanDirs(root string, withSize bool) ([]DirInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dir := DirInfo{Name: entry.Name(), Path: filepath.Join(root, entry.Name()), ModTime: info.ModTime()}
		if withSize {
			dir.Size = treeSize(dir.Path)
		}
		dirs = append(dirs, dir)
	}
	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].ModTime.Before(dirs[j].ModTime) })
	return dirs, nil
}

// treeSize sums regular file sizes below path, skipping unreadable entries.
func treeSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
