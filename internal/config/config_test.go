package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"l2writer/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantSpool := filepath.Join(tempHome, ".local", "share", "l2writer", "spool")
	if cfg.Paths.SpoolDir != wantSpool {
		t.Fatalf("unexpected spool dir: got %q want %q", cfg.Paths.SpoolDir, wantSpool)
	}
	if cfg.Writer.FallbackAreaID != "satproj" {
		t.Fatalf("unexpected fallback area id: %q", cfg.Writer.FallbackAreaID)
	}
	if cfg.Save.Compression != 6 {
		t.Fatalf("expected default compression 6, got %d", cfg.Save.Compression)
	}
	if cfg.Publisher.Name != "l2producer" {
		t.Fatalf("unexpected publisher name: %q", cfg.Publisher.Name)
	}
	if cfg.Publisher.Enabled {
		t.Fatal("expected publisher disabled by default")
	}
	if cfg.Lock.AcquireTimeout != 300 {
		t.Fatalf("unexpected lock timeout: %d", cfg.Lock.AcquireTimeout)
	}
	if cfg.Workflow.PollTimeoutMS != 1000 {
		t.Fatalf("unexpected poll timeout: %d", cfg.Workflow.PollTimeoutMS)
	}
	if cfg.OutboxPath() != filepath.Join(tempHome, ".local", "share", "l2writer", "state", "outbox.db") {
		t.Fatalf("unexpected outbox path: %q", cfg.OutboxPath())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
spool_dir = "~/spool"

[writer]
topic = "/image/{area_id}"
fallback_area_id = "  custom  "

[writer.publish_vars]
platform = "platform_name"

[save]
compression = 9
fformat = "GTiff"

[save.gdal_options]
quality = "75"

[publisher]
enabled = true
urls = [" nats://broker:4222 ", ""]
subject_prefix = ".pytroll."

[lock]
enabled = true
path = "~/locks/l2.lock"
acquire_timeout = 0

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.SpoolDir != filepath.Join(tempHome, "spool") {
		t.Fatalf("unexpected spool dir: %q", cfg.Paths.SpoolDir)
	}
	if cfg.Writer.FallbackAreaID != "custom" {
		t.Fatalf("expected trimmed fallback id, got %q", cfg.Writer.FallbackAreaID)
	}
	if cfg.Writer.PublishVars["platform"] != "platform_name" {
		t.Fatalf("unexpected publish vars: %v", cfg.Writer.PublishVars)
	}
	if cfg.Save.Compression != 9 || cfg.Save.Format != "GTiff" {
		t.Fatalf("unexpected save options: %+v", cfg.Save)
	}
	if cfg.Save.GDALOptions["quality"] != "75" {
		t.Fatalf("unexpected gdal options: %v", cfg.Save.GDALOptions)
	}
	if len(cfg.Publisher.URLs) != 1 || cfg.Publisher.URLs[0] != "nats://broker:4222" {
		t.Fatalf("unexpected publisher urls: %v", cfg.Publisher.URLs)
	}
	if cfg.Publisher.SubjectPrefix != "pytroll" {
		t.Fatalf("unexpected subject prefix: %q", cfg.Publisher.SubjectPrefix)
	}
	if cfg.Lock.Path != filepath.Join(tempHome, "locks", "l2.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.Lock.Path)
	}
	if cfg.Lock.AcquireTimeout != 0 {
		t.Fatalf("expected unbounded lock wait, got %d", cfg.Lock.AcquireTimeout)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("L2WRITER_NATS_URL", "nats://env:4222")
	t.Setenv("L2WRITER_S3_ACCESS_KEY", "access")
	t.Setenv("L2WRITER_S3_SECRET_KEY", "secret")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[object_store]
endpoint = "minio.local:9000"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Publisher.URLs) != 1 || cfg.Publisher.URLs[0] != "nats://env:4222" {
		t.Fatalf("expected env nats url, got %v", cfg.Publisher.URLs)
	}
	if cfg.ObjectStore.AccessKey != "access" || cfg.ObjectStore.SecretKey != "secret" {
		t.Fatalf("expected env credentials, got %+v", cfg.ObjectStore)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "compression out of range",
			mutate: func(c *config.Config) { c.Save.Compression = 10 },
			want:   "save.compression",
		},
		{
			name: "publisher without urls",
			mutate: func(c *config.Config) {
				c.Publisher.Enabled = true
				c.Publisher.URLs = nil
			},
			want: "publisher.urls",
		},
		{
			name:   "negative lock timeout",
			mutate: func(c *config.Config) { c.Lock.AcquireTimeout = -1 },
			want:   "lock.acquire_timeout",
		},
		{
			name:   "topic without leading slash",
			mutate: func(c *config.Config) { c.Writer.Topic = "image/{area_id}" },
			want:   "writer.topic",
		},
		{
			name:   "topic with whitespace",
			mutate: func(c *config.Config) { c.Writer.Topic = "/image/{area_id} hrpt" },
			want:   "writer.topic",
		},
		{
			name:   "zero queue size",
			mutate: func(c *config.Config) { c.Workflow.QueueSize = 0 },
			want:   "workflow.queue_size",
		},
		{
			name:   "object store without credentials",
			mutate: func(c *config.Config) { c.ObjectStore.Endpoint = "minio:9000" },
			want:   "object_store.access_key",
		},
		{
			name:   "unknown log format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	for _, section := range []string{"paths", "writer", "save", "publisher", "lock", "workflow", "outbox", "logging"} {
		if _, ok := raw[section]; !ok {
			t.Fatalf("sample missing [%s] section", section)
		}
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Writer.Topic != "/image/{area_id}" {
		t.Fatalf("unexpected sample topic: %q", cfg.Writer.Topic)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SpoolDir = filepath.Join(base, "spool")
	cfg.Paths.DoneDir = filepath.Join(base, "done")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.SpoolDir, cfg.Paths.DoneDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
