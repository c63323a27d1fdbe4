// Package preflight provides readiness checks for the filesystem paths and
// external services the writer stage depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check.
//     Failures do not stop the daemon; the broker and object store may come up later.
//   - The CLI "l2writer status" command renders the same results.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
