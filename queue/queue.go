// Package queue provides delayed queues that hand out items no earlier than
// their due time.
//
// A queue only carries references (item IDs). The database row referenced by
// an item stays the source of truth; losing a queue entry delays work until
// the recovery scan picks it up, it never loses it.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by Push and Pop after Close.
	ErrClosed = errors.New("queue closed")

	// ErrEmptyID is returned when pushing an item without an ID.
	ErrEmptyID = errors.New("queue item id is required")
)

// Item references a unit of work due at DueAt.
type Item struct {
	ID    string
	DueAt time.Time
}

// Queue is a time-ordered delayed queue.
type Queue interface {
	// Push adds an item. Pushing an ID that is already queued replaces its due time.
	Push(ctx context.Context, item Item) error

	// Pop blocks until the earliest item is due, ctx is done, or the queue is closed.
	Pop(ctx context.Context) (Item, error)

	// Len reports how many items are waiting, due or not.
	Len(ctx context.Context) (int, error)

	Close() error
}
