// Package logs reads the daemon log for the CLI.
//
// Tail returns the last lines of a log file and an offset to resume from, and
// can wait for new lines in follow mode. Filter narrows JSON log lines by
// level, component, or event type; console lines fall back to a substring match.
package logs
