// Package lock provides the advisory lock a stage shares with the stage before it.
//
// A Coordinator is cooperative: nothing forces a holder to release it, so callers
// go through Hold, which pairs every acquisition with a release on all exit paths
// and bounds how long a stage waits for its neighbour. Mutex serves stages in the
// same process; File adds a flock(2) lock so stages in separate processes can
// share a lock file.
package lock
