// Package queue carries work from the previous pipeline stage to the writer stage.
//
// A Queue is a bounded FIFO of Items with one producer and one consumer. Items
// are either DataItems (a scene plus the products to persist) or the EndOfBatch
// sentinel that tells the consumer to flush. Pop takes a timeout so the consumer
// can observe stop requests between items, and Done/Join let the producer wait
// until everything it pushed was taken.
package queue
