package presence

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically reconciles the registry against the transport. It is
// the backstop for disconnects the transport never reported.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewSweeper(svc *Service, interval time.Duration, clock clockwork.Clock, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{svc: svc, interval: interval, clock: clock, log: log.Named("sweeper")}
}

// Run blocks until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := sw.clock.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.log.Info("sweeper started", zap.Duration("interval", sw.interval))
	for {
		select {
		case <-ctx.Done():
			sw.log.Info("sweeper stopped")
			return
		case <-ticker.Chan():
			sw.svc.Sweep(ctx)
		}
	}
}
