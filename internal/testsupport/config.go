package testsupport

import (
	"path/filepath"
	"testing"

	"l2writer/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SpoolDir = filepath.Join(base, "spool")
	cfgVal.Paths.DoneDir = filepath.Join(base, "done")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Writer.Topic = "/image/{area_id}"
	cfgVal.Workflow.PollTimeoutMS = 20
	cfgVal.Workflow.IdleWaitMS = 20
	cfgVal.Workflow.SpoolPollInterval = 1
	cfgVal.Lock.AcquireTimeout = 5
	cfgVal.Lock.RetryDelayMS = 5
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithTopic overrides the notification topic template; empty disables messages.
func WithTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Writer.Topic = topic
	}
}

// WithPublishVars sets the metadata selection copied into message payloads.
func WithPublishVars(vars map[string]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Writer.PublishVars = vars
	}
}

// WithFileLock enables the shared lock backed by a file under the temp directory.
func WithFileLock() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Lock.Enabled = true
		b.cfg.Lock.Path = filepath.Join(b.baseDir, "handoff.lock")
	}
}

// WithProductList writes doc to a product list file and points the config at it.
func WithProductList(doc string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "product_list.yaml")
		WriteFile(b.t, path, []byte(doc))
		b.cfg.Writer.ProductList = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SpoolDir)
}
