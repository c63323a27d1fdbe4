package preflight

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"l2writer/internal/config"
	"l2writer/internal/productlist"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckPublisher_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	result := CheckPublisher(context.Background(), config.Publisher{
		Enabled: true,
		URLs:    []string{"nats://" + addr},
		Name:    "l2producer",
	})
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestCheckPublisher_MissingURLs(t *testing.T) {
	result := CheckPublisher(context.Background(), config.Publisher{Enabled: true})
	if result.Passed || result.Detail != "missing urls" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func objectStoreServer(t *testing.T, status int, body string) config.ObjectStore {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return config.ObjectStore{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
	}
}

func TestCheckObjectStore_OK(t *testing.T) {
	cfg := objectStoreServer(t, http.StatusOK,
		`<?xml version="1.0" encoding="UTF-8"?><ListAllMyBucketsResult><Owner><ID>x</ID></Owner><Buckets></Buckets></ListAllMyBucketsResult>`)
	result := CheckObjectStore(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckObjectStore_Denied(t *testing.T) {
	cfg := objectStoreServer(t, http.StatusForbidden,
		`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`)
	result := CheckObjectStore(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure for denied credentials")
	}
}

func TestCheckObjectStore_MissingCredentials(t *testing.T) {
	result := CheckObjectStore(context.Background(), config.ObjectStore{Endpoint: "minio:9000"})
	if result.Passed {
		t.Fatal("expected failure without credentials")
	}
}

func TestOutputDirsSkipsTemplatesAndObjectURLs(t *testing.T) {
	plist, err := productlist.Parse([]byte(`
common:
  output_dir: /data/common
product_list:
  euro4:
    output_dir: /data/euro4
    products:
      overview:
        output_dir: "/data/{platform_name}"
      natural:
        output_dir: s3://bucket/natural
      cloudtop:
        output_dir: /data/euro4
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dirs := OutputDirs(plist)
	if len(dirs) != 2 || dirs[0] != "/data/common" || dirs[1] != "/data/euro4" {
		t.Fatalf("unexpected dirs: %v", dirs)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.SpoolDir = t.TempDir()
	cfg.Paths.DoneDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_ChecksProductListOutputDirs(t *testing.T) {
	base := t.TempDir()
	listPath := filepath.Join(base, "product_list.yaml")
	missing := filepath.Join(base, "missing-out")
	doc := fmt.Sprintf("product_list:\n  euro4:\n    output_dir: %s\n    products:\n      overview: {}\n", missing)
	if err := os.WriteFile(listPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths.SpoolDir = t.TempDir()
	cfg.Paths.DoneDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Writer.ProductList = listPath

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %+v", results)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Output directory" {
		t.Fatalf("expected only the output directory to fail, got %+v", failed)
	}
}
