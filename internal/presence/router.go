package presence

import (
	"context"
	"time"

	"go.uber.org/zap"
	"social-realtime/internal/metrics"
	"social-realtime/internal/model"
)

// storeTimeout bounds queue and archive writes once they are detached from
// the caller's context.
const storeTimeout = 5 * time.Second

// Outcome is the result of routing one delivery. Only Delivered and Queued
// are normal outcomes; callers must not treat Queued as a failure.
type Outcome int

const (
	Ignored Outcome = iota
	Delivered
	Queued
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	default:
		return "ignored"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Route emits d to every live connection of recipientID. Connections the
// transport rejects are pruned. If no connection took it, d is queued for
// replay on the recipient's next join and handed to the archive.
func (s *Service) Route(ctx context.Context, recipientID string, d model.Delivery) Outcome {
	if recipientID == "" || !d.Valid() {
		return Ignored
	}

	// Queue and archive writes outlive the caller's request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	outcome := s.route(ctx, recipientID, d)
	metrics.Deliveries.WithLabelValues(string(d.Kind), outcome.String()).Inc()

	if outcome == Queued && s.archive != nil {
		if err := s.archive.RecordMissed(ctx, recipientID, d); err != nil {
			s.log.Warn("archive missed delivery", zap.String("user_id", recipientID), zap.Error(err))
		}
	}
	return outcome
}

func (s *Service) route(ctx context.Context, recipientID string, d model.Delivery) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fanOut(ctx, recipientID, d.LiveEvent(), d.Body()) > 0 {
		return Delivered
	}

	if err := s.pending.Enqueue(ctx, recipientID, d); err != nil {
		metrics.PendingErrors.WithLabelValues("enqueue").Inc()
		s.log.Error("enqueue pending delivery", zap.String("user_id", recipientID), zap.Error(err))
		return Dropped
	}
	return Queued
}

// Signal sends a live-only event to userID. Nothing is queued when the user
// is offline. It returns how many connections accepted the event.
func (s *Service) Signal(ctx context.Context, userID, event string, payload any) int {
	if userID == "" || event == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fanOut(ctx, userID, event, payload)
}

// fanOut must be called with s.mu held.
func (s *Service) fanOut(ctx context.Context, userID, event string, payload any) int {
	delivered := 0
	for _, connID := range s.registry.Connections(userID) {
		if err := s.transport.Emit(connID, event, payload); err != nil {
			s.log.Debug("emit failed, pruning connection",
				zap.String("user_id", userID),
				zap.String("conn_id", connID),
				zap.Error(err))
			s.prune(ctx, connID, "emit")
			continue
		}
		delivered++
	}
	return delivered
}
