// Package outbox journals notifications between the end of a batch's writes and
// their delivery.
//
// The worker records every pending message of a batch after the batch's files
// are on disk and marks each one sent once the publisher accepted it. Entries
// still unsent when a worker starts are replayed in their original order, so a
// crash or restart between writing and announcing does not lose notifications.
// The journal lives in a SQLite database (modernc.org/sqlite) under the state
// directory and is migrated from embedded SQL files.
package outbox
