package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWriter()
	c.normalizePublisher()
	if err := c.normalizeLock(); err != nil {
		return err
	}
	c.normalizeObjectStore()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SpoolDir, err = expandPath(c.Paths.SpoolDir); err != nil {
		return fmt.Errorf("paths.spool_dir: %w", err)
	}
	if c.Paths.DoneDir, err = expandPath(c.Paths.DoneDir); err != nil {
		return fmt.Errorf("paths.done_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWriter() {
	c.Writer.Topic = strings.TrimSpace(c.Writer.Topic)
	c.Writer.FallbackAreaID = strings.TrimSpace(c.Writer.FallbackAreaID)
	if c.Writer.FallbackAreaID == "" {
		c.Writer.FallbackAreaID = defaultFallbackAreaID
	}
	if c.Writer.PublishVars == nil {
		c.Writer.PublishVars = map[string]string{}
	}
	if c.Writer.Concurrency <= 0 {
		c.Writer.Concurrency = defaultWriterConcurrency
	}
	if path := strings.TrimSpace(c.Writer.ProductList); path != "" {
		if expanded, err := expandPath(path); err == nil {
			c.Writer.ProductList = expanded
		}
	}
}

func (c *Config) normalizePublisher() {
	urls := make([]string, 0, len(c.Publisher.URLs))
	for _, url := range c.Publisher.URLs {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if value, ok := os.LookupEnv("L2WRITER_NATS_URL"); ok && strings.TrimSpace(value) != "" {
		urls = []string{strings.TrimSpace(value)}
	}
	c.Publisher.URLs = urls
	c.Publisher.Name = strings.TrimSpace(c.Publisher.Name)
	if c.Publisher.Name == "" {
		c.Publisher.Name = defaultPublisherName
	}
	c.Publisher.SubjectPrefix = strings.Trim(strings.TrimSpace(c.Publisher.SubjectPrefix), ".")
}

func (c *Config) normalizeLock() error {
	path := strings.TrimSpace(c.Lock.Path)
	if path == "" {
		c.Lock.Path = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("lock.path: %w", err)
	}
	c.Lock.Path = expanded
	return nil
}

func (c *Config) normalizeObjectStore() {
	if value, ok := os.LookupEnv("L2WRITER_S3_ACCESS_KEY"); ok && value != "" {
		c.ObjectStore.AccessKey = value
	}
	if value, ok := os.LookupEnv("L2WRITER_S3_SECRET_KEY"); ok && value != "" {
		c.ObjectStore.SecretKey = value
	}
	c.ObjectStore.Endpoint = strings.TrimSpace(c.ObjectStore.Endpoint)
	c.ObjectStore.Region = strings.TrimSpace(c.ObjectStore.Region)
	if c.ObjectStore.Region == "" {
		c.ObjectStore.Region = defaultObjectStoreRegion
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
