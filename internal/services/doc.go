// Package services defines shared utilities consumed by the writer stage and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp stage names and batch identifiers for logging.
//   - Structured error markers plus the Wrap helper, and IsFatal which decides
//     whether a failure terminates the worker loop or is logged and skipped.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform.
package services
