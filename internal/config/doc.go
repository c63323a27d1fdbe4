// Package config loads, normalizes, and validates l2writer configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// L2WRITER_NATS_URL and the L2WRITER_S3_* credentials. The Config type
// centralizes every knob the daemon and CLI need: spool directories, the
// product list, save options handed to the write delegate, the notification
// channel, and the advisory lock shared with the previous stage.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
