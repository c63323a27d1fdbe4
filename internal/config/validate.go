package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSave(); err != nil {
		return err
	}
	if err := c.validateWriter(); err != nil {
		return err
	}
	if err := c.validatePublisher(); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSave() error {
	if c.Save.Compression < 0 || c.Save.Compression > 9 {
		return errors.New("save.compression must be between 0 and 9")
	}
	if c.Save.BlockSize < 0 {
		return errors.New("save.blocksize cannot be negative")
	}
	return nil
}

func (c *Config) validateWriter() error {
	topic := c.Writer.Topic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "/") {
		return fmt.Errorf("writer.topic %q must start with '/'", topic)
	}
	if strings.ContainsAny(topic, " \t\r\n") {
		return fmt.Errorf("writer.topic %q cannot contain whitespace", topic)
	}
	return nil
}

func (c *Config) validatePublisher() error {
	if !c.Publisher.Enabled {
		return nil
	}
	if len(c.Publisher.URLs) == 0 {
		return errors.New("publisher.urls must list at least one server when publisher.enabled is true")
	}
	if c.Publisher.RequestTimeout <= 0 {
		return errors.New("publisher.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLock() error {
	if c.Lock.AcquireTimeout < 0 {
		return errors.New("lock.acquire_timeout cannot be negative (0 waits forever)")
	}
	if c.Lock.Enabled && c.Lock.RetryDelayMS <= 0 {
		return errors.New("lock.retry_delay_ms must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.DoneRetentionDays < 0 {
		return errors.New("workflow.done_retention_days cannot be negative (0 keeps scenes forever)")
	}
	return ensurePositiveMap(map[string]int{
		"workflow.poll_timeout_ms":     c.Workflow.PollTimeoutMS,
		"workflow.idle_wait_ms":        c.Workflow.IdleWaitMS,
		"workflow.queue_size":          c.Workflow.QueueSize,
		"workflow.spool_poll_interval": c.Workflow.SpoolPollInterval,
	})
}

func (c *Config) validateObjectStore() error {
	if c.ObjectStore.Endpoint == "" {
		return nil
	}
	if strings.TrimSpace(c.ObjectStore.AccessKey) == "" || strings.TrimSpace(c.ObjectStore.SecretKey) == "" {
		return errors.New("object_store.access_key and object_store.secret_key must be set when object_store.endpoint is configured")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
