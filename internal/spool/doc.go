// Package spool feeds the writer stage from a directory: it stands in for the
// previous pipeline stage when l2writer runs as a daemon.
//
// Every poll picks up the scene directories (those holding a scene.json manifest)
// in name order, moves each one to the done directory, and enqueues one DataItem
// per scene followed by a single EndOfBatch. Loading and moving happen while the
// shared lock is held, so the writer never touches a scene directory the ingester
// is still handling.
package spool
