// Package queue implements the in-process FIFO that carries newly
// created hosts from the HTTP handlers to the investigator worker.
package queue

import (
	"context"

	"github.com/commissaire/commissaire/pkg/models"
)

// Item is one pending investigation: the host record as it was written
// at creation time, and the base64-encoded SSH private key supplied by
// the caller (never persisted directly, only ever passed to the
// investigator for the duration of one investigation).
type Item struct {
	Host       *models.Host
	SSHPrivKey string
}

// InvestigateQueue is a bounded FIFO of pending host investigations.
// Capacity is fixed at construction; Put blocks while full and Get
// blocks while empty, matching the spec's "blocking semantics on
// empty/full" requirement.
type InvestigateQueue struct {
	items chan Item
}

// New creates an InvestigateQueue with room for capacity pending items.
func New(capacity int) *InvestigateQueue {
	return &InvestigateQueue{items: make(chan Item, capacity)}
}

// Put enqueues an item, blocking if the queue is at capacity until
// either room frees up or ctx is cancelled.
func (q *InvestigateQueue) Put(ctx context.Context, item Item) error {
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next item in FIFO order, blocking if the queue is
// empty until either an item arrives or ctx is cancelled.
func (q *InvestigateQueue) Get(ctx context.Context) (Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

// Len reports the number of items currently queued, for diagnostics.
func (q *InvestigateQueue) Len() int {
	return len(q.items)
}
