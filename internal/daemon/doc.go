// Package daemon coordinates the long-running l2writer process.
//
// It wires configuration, the outbox journal, the write delegate, the NATS
// publisher, the spool ingester, and the writer-stage Supervisor into a single
// lifecycle with flock-based locking to prevent multiple instances. The daemon
// also owns the Prometheus endpoint and the outbox retention sweep.
//
// Keep orchestration logic here: the stage itself lives in workflow while the
// daemon focuses on startup, shutdown, and high level coordination.
package daemon
