package presence

import (
	"context"

	"social-realtime/internal/model"
)

// PendingStore holds deliveries for users with no live connection, in the
// order they were enqueued. Queues are unbounded and never expire.
type PendingStore interface {
	Enqueue(ctx context.Context, userID string, d model.Delivery) error
	// Drain returns the whole queue for userID and clears it.
	Drain(ctx context.Context, userID string) ([]model.Delivery, error)
	Len(ctx context.Context, userID string) (int, error)
}

// Archive records deliveries that could not be made live. It is the only
// outbound persistence call the service makes.
type Archive interface {
	RecordMissed(ctx context.Context, userID string, d model.Delivery) error
}

// Publisher mirrors presence transitions to other services.
type Publisher interface {
	PublishPresence(ctx context.Context, userID string, online bool) error
}
