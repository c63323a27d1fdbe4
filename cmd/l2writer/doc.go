// Package main hosts the l2writer CLI entrypoint and command graph.
//
// The Cobra-based command tree runs, stops and inspects the daemon, tails its
// log, writes scene directories in one shot, maintains the notification outbox,
// and scaffolds configuration. It centralizes configuration resolution and logger setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
