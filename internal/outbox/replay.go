package outbox

import (
	"context"
	"fmt"

	"l2writer/internal/notify"
)

// ReplayResult summarises a replay run.
type ReplayResult struct {
	Pending int
	Sent    int
	Failed  int
}

// Replay resends up to limit unsent entries in recording order through pub.
// Delivery failures are recorded on the entry and do not stop the run.
func Replay(ctx context.Context, store *Store, pub notify.Publisher, limit int) (ReplayResult, error) {
	entries, err := store.Pending(ctx, limit)
	if err != nil {
		return ReplayResult{}, err
	}
	result := ReplayResult{Pending: len(entries)}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		msg, err := entry.Message()
		if err != nil {
			result.Failed++
			if merr := store.MarkFailed(ctx, entry.ID, err); merr != nil {
				return result, merr
			}
			continue
		}
		if err := pub.Send(ctx, msg); err != nil {
			result.Failed++
			if merr := store.MarkFailed(ctx, entry.ID, err); merr != nil {
				return result, merr
			}
			continue
		}
		if err := store.MarkSent(ctx, entry.ID); err != nil {
			return result, fmt.Errorf("entry %d: %w", entry.ID, err)
		}
		result.Sent++
	}
	return result, nil
}
