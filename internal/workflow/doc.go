// Package workflow runs the writer stage: a Worker that drains the work queue and
// a Supervisor that owns the Worker's lifecycle.
//
// The Worker is a small state machine (Idle, Draining, Stopped). Each iteration
// pops one item with a short timeout, holds the lock shared with the previous
// stage around the item, and either stages deferred writes and pending messages
// for a DataItem or flushes the batch on EndOfBatch. A flush executes every
// deferred write, journals the messages to the outbox, sends them in recording
// order, and clears the batch.
//
// Queue and lock references live in Bindings, swapped atomically and read once
// per iteration, so a Supervisor can rebind them while a Worker runs and restarts
// carry them over. Fatal errors (lock timeout, unusable write delegate) stop the
// Worker and surface through Supervisor.Err; everything else is logged and the
// loop continues.
package workflow
