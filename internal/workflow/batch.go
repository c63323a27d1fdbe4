package workflow

import (
	"github.com/google/uuid"

	"l2writer/internal/notify"
	"l2writer/internal/writer"
)

// Batch accumulates the deferred writes and pending messages of one logical group.
type Batch struct {
	id       string
	writes   []*writer.Deferred
	messages []notify.Message
}

// NewBatch returns an empty batch with a fresh identifier.
func NewBatch() *Batch {
	return &Batch{id: uuid.NewString()}
}

func (b *Batch) ID() string { return b.id }

// Add records a staged write and, when msg is non-nil, its notification.
func (b *Batch) Add(d *writer.Deferred, msg *notify.Message) {
	b.writes = append(b.writes, d)
	if msg != nil {
		b.messages = append(b.messages, *msg)
	}
}

func (b *Batch) Writes() []*writer.Deferred { return b.writes }

func (b *Batch) Messages() []notify.Message { return b.messages }

// Len reports the number of staged writes.
func (b *Batch) Len() int { return len(b.writes) }

func (b *Batch) Empty() bool { return len(b.writes) == 0 && len(b.messages) == 0 }

// Reset drops everything and starts a new batch identifier.
func (b *Batch) Reset() {
	b.id = uuid.NewString()
	b.writes = nil
	b.messages = nil
}
