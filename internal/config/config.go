package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SpoolDir string `toml:"spool_dir"`
	DoneDir  string `toml:"done_dir"`
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Writer contains the product-to-file and file-to-message settings.
type Writer struct {
	ProductList    string            `toml:"product_list"`
	Topic          string            `toml:"topic"`
	FallbackAreaID string            `toml:"fallback_area_id"`
	PublishVars    map[string]string `toml:"publish_vars"`
	Concurrency    int               `toml:"concurrency"`
}

// Save holds the options handed verbatim to the write delegate.
type Save struct {
	Compression int               `toml:"compression"`
	Tags        map[string]string `toml:"tags"`
	Format      string            `toml:"fformat"`
	GDALOptions map[string]string `toml:"gdal_options"`
	BlockSize   int               `toml:"blocksize"`
}

// Publisher contains configuration for the NATS notification channel.
type Publisher struct {
	Enabled        bool     `toml:"enabled"`
	URLs           []string `toml:"urls"`
	Name           string   `toml:"name"`
	SubjectPrefix  string   `toml:"subject_prefix"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Lock contains configuration for the advisory lock shared with the previous stage.
type Lock struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path"`
	AcquireTimeout int    `toml:"acquire_timeout"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
}

// Workflow contains worker loop timing.
type Workflow struct {
	PollTimeoutMS     int `toml:"poll_timeout_ms"`
	IdleWaitMS        int `toml:"idle_wait_ms"`
	QueueSize         int `toml:"queue_size"`
	SpoolPollInterval int `toml:"spool_poll_interval"`
	DoneRetentionDays int `toml:"done_retention_days"`
}

// ObjectStore contains S3-compatible storage settings for s3:// output filenames.
type ObjectStore struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Outbox contains settings for the notification journal.
type Outbox struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Metrics contains the Prometheus endpoint bind address.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for l2writer.
//
// Configuration sections by subsystem:
//   - Paths: spool, done, log and state directories
//   - Writer: product list, topic template, payload selection
//   - Save: options passed through to the write delegate
//   - Publisher: NATS notification channel
//   - Lock: advisory lock shared with the previous stage
//   - Workflow: queue polling and sizing
//   - ObjectStore: S3-compatible output target
//   - Outbox: notification journal
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Writer      Writer      `toml:"writer"`
	Save        Save        `toml:"save"`
	Publisher   Publisher   `toml:"publisher"`
	Lock        Lock        `toml:"lock"`
	Workflow    Workflow    `toml:"workflow"`
	ObjectStore ObjectStore `toml:"object_store"`
	Outbox      Outbox      `toml:"outbox"`
	Metrics     Metrics     `toml:"metrics"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/l2writer/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("l2writer.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.SpoolDir, c.Paths.DoneDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// OutboxPath returns the location of the notification journal database.
func (c *Config) OutboxPath() string {
	return filepath.Join(c.Paths.StateDir, "outbox.db")
}

// DaemonLockPath returns the location of the single-instance daemon lock.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "l2writer.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
