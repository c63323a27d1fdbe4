// Package writer implements the write delegate of the stage: it stages deferred,
// not-yet-executed persistence operations for (product, filename) pairs and
// executes a batch of them in one blocking call.
//
// Staging never touches the disk or the network. ExecuteAll runs every staged
// write with bounded parallelism and returns once all of them finished. Local
// paths are written atomically; s3://bucket/key filenames go to the configured
// object store.
package writer
