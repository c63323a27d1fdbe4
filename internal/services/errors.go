package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Wrap one around a cause so callers can classify it with
// errors.Is, IsFatal, or Kind.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	// ErrFatal marks failures after which the stage cannot make progress,
	// such as a write delegate or lock coordinator that is no longer usable.
	ErrFatal = errors.New("fatal stage failure")
)

var kinds = []struct {
	marker error
	label  string
}{
	{ErrFatal, "fatal"},
	{ErrConfiguration, "configuration"},
	{ErrValidation, "validation"},
	{ErrNotFound, "not_found"},
	{ErrTimeout, "timeout"},
	{ErrExternalTool, "external"},
	{ErrTransient, "transient"},
}

// Wrap tags err with marker and prefixes it with "stage: operation: message".
// A nil marker means ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	var parts []string
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	detail := "service failure"
	if len(parts) > 0 {
		detail = strings.Join(parts, ": ")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err should terminate a worker's run loop rather than
// being logged and skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrFatal) || errors.Is(err, ErrConfiguration)
}

// Kind labels err by the first marker it carries, for log fields and metrics.
// Unmarked errors are "unknown"; nil is "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.label
		}
	}
	return "unknown"
}
