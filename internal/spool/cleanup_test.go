package spool_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"l2writer/internal/logging"
	"l2writer/internal/spool"
)

func makeDir(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(filepath.Join(path, "scene.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestCleanDoneInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := spool.CleanDone(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || result.Err != nil {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanDoneRemovesOldScenes(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "old-scene")
	recentDir := filepath.Join(root, "recent-scene")
	makeDir(t, oldDir, 48*time.Hour)
	makeDir(t, recentDir, 0)

	result := spool.CleanDone(context.Background(), root, 24*time.Hour, logging.NewNop())
	if result.Err != nil {
		t.Fatalf("CleanDone: %v", result.Err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatal("old scene should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Fatal("recent scene should still exist")
	}
}

func TestCleanDoneZeroAgeKeepsEverything(t *testing.T) {
	root := t.TempDir()
	makeDir(t, filepath.Join(root, "scene"), 48*time.Hour)

	result := spool.CleanDone(context.Background(), root, 0, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", result.Removed)
	}
}

func TestListDirsOrdersOldestFirst(t *testing.T) {
	root := t.TempDir()
	makeDir(t, filepath.Join(root, "newer"), time.Hour)
	makeDir(t, filepath.Join(root, "older"), 3*time.Hour)
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	dirs, err := spool.ListDirs(root)
	if err != nil {
		t.Fatalf("ListDirs: %v", err)
	}
	if len(dirs) != 2 || dirs[0].Name != "older" || dirs[1].Name != "newer" {
		t.Fatalf("unexpected dirs: %+v", dirs)
	}
	if dirs[0].Size != 2 {
		t.Fatalf("expected size 2, got %d", dirs[0].Size)
	}

	missing, err := spool.ListDirs(filepath.Join(root, "missing"))
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing root, got %v %v", missing, err)
	}
}
