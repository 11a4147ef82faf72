package presence

import (
	"context"

	"go.uber.org/zap"
)

// Broadcaster announces presence changes to every connection: first the
// full online set, then the discrete event. Clients treat the discrete event
// as authoritative.
type Broadcaster struct {
	registry  *Registry
	transport Transport
	publisher Publisher
	log       *zap.Logger
}

func newBroadcaster(registry *Registry, transport Transport, publisher Publisher, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		transport: transport,
		publisher: publisher,
		log:       log.Named("broadcaster"),
	}
}

// online is announced on every join. Only the first connection is a
// transition, so only that one reaches the publisher.
func (b *Broadcaster) online(ctx context.Context, userID string, first bool) {
	b.transport.Broadcast(EventActiveUsers, b.registry.OnlineUserIDs())
	b.transport.Broadcast(EventUserOnline, userID)
	if first {
		b.publish(ctx, userID, true)
	}
}

func (b *Broadcaster) offline(ctx context.Context, userID string) {
	b.transport.Broadcast(EventActiveUsers, b.registry.OnlineUserIDs())
	b.transport.Broadcast(EventUserOffline, userID)
	b.publish(ctx, userID, false)
}

func (b *Broadcaster) publish(ctx context.Context, userID string, online bool) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.PublishPresence(ctx, userID, online); err != nil {
		b.log.Warn("publish presence", zap.String("user_id", userID), zap.Bool("online", online), zap.Error(err))
	}
}
