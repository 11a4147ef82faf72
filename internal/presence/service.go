package presence

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"social-realtime/internal/metrics"
)

const (
	EventJoinConfirmed   = "joinConfirmed"
	EventActiveUsers     = "activeUsers"
	EventUserOnline      = "userOnline"
	EventUserOffline     = "userOffline"
	EventStatusConfirmed = "statusConfirmed"
)

// Transport is the realtime connection layer the service drives.
type Transport interface {
	// Emit queues an event for one connection. An error means the
	// connection is no longer valid.
	Emit(connID, event string, payload any) error
	// Broadcast queues an event for every connected connection.
	Broadcast(event string, payload any)
	// Alive reports whether connID is still an open connection.
	Alive(connID string) bool
}

type Options struct {
	Logger    *zap.Logger
	Archive   Archive
	Publisher Publisher
	// BroadcastOnSweep emits userOffline for users evicted by Sweep.
	BroadcastOnSweep bool
}

type Status struct {
	UserID      string `json:"userId"`
	Active      bool   `json:"active"`
	SocketCount int    `json:"socketCount"`
}

// Service owns the connection registry and the pending store. Every
// compound operation runs under mu so that routing, joining, disconnecting
// and sweeping never interleave.
type Service struct {
	mu sync.Mutex

	registry    *Registry
	pending     PendingStore
	transport   Transport
	broadcaster *Broadcaster
	archive     Archive
	log         *zap.Logger

	broadcastOnSweep bool
}

func NewService(transport Transport, pending PendingStore, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	registry := NewRegistry()
	return &Service{
		registry:         registry,
		pending:          pending,
		transport:        transport,
		broadcaster:      newBroadcaster(registry, transport, opts.Publisher, log),
		archive:          opts.Archive,
		log:              log.Named("presence"),
		broadcastOnSweep: opts.BroadcastOnSweep,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

// Join registers connID for userID, confirms it to the connection, announces
// the user to everyone and replays anything queued while it was offline.
// It returns false when the input was ignored.
func (s *Service) Join(ctx context.Context, userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, moved := s.registry.Owner(connID)
	first := s.registry.Join(userID, connID)
	s.updateGauges()
	if first {
		metrics.PresenceTransitions.WithLabelValues("online", "join").Inc()
	}
	if moved && prev != userID && !s.registry.IsOnline(prev) {
		metrics.PresenceTransitions.WithLabelValues("offline", "rejoin").Inc()
		s.broadcaster.offline(ctx, prev)
	}
	s.log.Debug("join", zap.String("user_id", userID), zap.String("conn_id", connID), zap.Bool("first", first))

	if err := s.transport.Emit(connID, EventJoinConfirmed, userID); err != nil {
		s.log.Debug("join confirmation not sent", zap.String("conn_id", connID), zap.Error(err))
	}
	s.broadcaster.online(ctx, userID, first)
	s.drainAndDeliver(ctx, userID, connID)
	return true
}

// Disconnect forgets connID. If it was the owner's last connection the user
// goes offline and everyone is told.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, offline, ok := s.registry.Remove(connID)
	if !ok {
		return
	}
	s.updateGauges()
	s.log.Debug("disconnect", zap.String("user_id", userID), zap.String("conn_id", connID), zap.Bool("offline", offline))
	if offline {
		metrics.PresenceTransitions.WithLabelValues("offline", "disconnect").Inc()
		s.broadcaster.offline(ctx, userID)
	}
}

func (s *Service) Status(userID string) Status {
	n := s.registry.ConnectionCount(userID)
	return Status{UserID: userID, Active: n > 0, SocketCount: n}
}

func (s *Service) OnlineUsers() []string {
	return s.registry.OnlineUserIDs()
}

// Sweep drops every registered connection the transport no longer knows
// about and returns the users left with none.
func (s *Service) Sweep(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := prometheus.NewTimer(metrics.SweepDuration)
	evicted, dropped := s.registry.Reconcile(s.transport.Alive)
	timer.ObserveDuration()

	if dropped == 0 {
		return nil
	}
	s.updateGauges()
	metrics.PrunedConnections.WithLabelValues("sweep").Add(float64(dropped))
	metrics.SweepEvictions.Add(float64(len(evicted)))
	metrics.PresenceTransitions.WithLabelValues("offline", "sweep").Add(float64(len(evicted)))
	s.log.Info("sweep removed stale connections", zap.Int("connections", dropped), zap.Strings("evicted", evicted))

	if s.broadcastOnSweep {
		for _, userID := range evicted {
			s.broadcaster.offline(ctx, userID)
		}
	}
	return evicted
}

// drainAndDeliver replays userID's queue to connID in order. Replay is at
// most once: a transport failure partway loses the rest of the queue.
func (s *Service) drainAndDeliver(ctx context.Context, userID, connID string) {
	items, err := s.pending.Drain(ctx, userID)
	if err != nil {
		metrics.PendingErrors.WithLabelValues("drain").Inc()
		s.log.Error("drain pending deliveries", zap.String("user_id", userID), zap.Error(err))
		return
	}

	for i, d := range items {
		if err := s.transport.Emit(connID, d.ReplayEvent(), d.Body()); err != nil {
			s.log.Warn("replay interrupted, remaining deliveries lost",
				zap.String("user_id", userID),
				zap.String("conn_id", connID),
				zap.Int("lost", len(items)-i),
				zap.Error(err))
			return
		}
		metrics.PendingReplayed.Inc()
	}
	if len(items) > 0 {
		s.log.Debug("replayed pending deliveries", zap.String("user_id", userID), zap.Int("count", len(items)))
	}
}

// prune removes a connection the transport rejected.
func (s *Service) prune(ctx context.Context, connID, cause string) {
	userID, offline, ok := s.registry.Remove(connID)
	if !ok {
		return
	}
	s.updateGauges()
	metrics.PrunedConnections.WithLabelValues(cause).Inc()
	if offline {
		metrics.PresenceTransitions.WithLabelValues("offline", cause).Inc()
		s.broadcaster.offline(ctx, userID)
	}
}

func (s *Service) updateGauges() {
	metrics.Connections.Set(float64(s.registry.Len()))
	metrics.OnlineUsers.Set(float64(s.registry.UserCount()))
}
