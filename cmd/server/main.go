package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"social-realtime/internal/archive"
	"social-realtime/internal/auth"
	"social-realtime/internal/config"
	"social-realtime/internal/events"
	"social-realtime/internal/logging"
	"social-realtime/internal/presence"
	"social-realtime/internal/server"
	"social-realtime/internal/socketio"
	"social-realtime/internal/store"
)

const dialTimeout = 10 * time.Second

var (
	_ presence.Transport    = (*socketio.Server)(nil)
	_ presence.PendingStore = (*store.MemoryPending)(nil)
	_ presence.PendingStore = (*store.RedisPending)(nil)
	_ presence.Archive      = (*archive.Mongo)(nil)
	_ presence.Publisher    = (*events.NATSPublisher)(nil)
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)
	clock := clockwork.NewRealClock()

	pending, closePending, err := openPendingStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePending()

	opts := presence.Options{Logger: logger, BroadcastOnSweep: cfg.SweepBroadcastPresence}

	if cfg.MongoURI != "" {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		arch, err := archive.Connect(dialCtx, archive.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		cancel()
		if err != nil {
			return err
		}
		defer func() { _ = arch.Close(context.Background()) }()
		opts.Archive = arch
		logger.Info("missed-delivery archive enabled", zap.String("database", cfg.MongoDatabase))
	}

	if cfg.NATSURL != "" {
		pub, err := events.Dial(events.Config{URL: cfg.NATSURL})
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		opts.Publisher = pub
		logger.Info("presence events enabled", zap.String("nats", cfg.NATSURL))
	}

	rt := socketio.NewServer(socketio.Options{Logger: logger, Clock: clock})
	svc := presence.NewService(rt, pending, opts)
	rt.Attach(svc)
	defer rt.Close()

	sweeper := presence.NewSweeper(svc, cfg.SweepInterval, clock, logger)
	go sweeper.Run(ctx)

	tokenCfg := auth.DefaultTokenConfig(cfg.MasterSecret)

	router := server.NewRouter(server.Deps{
		Presence:           svc,
		Realtime:           rt,
		TokenConfig:        tokenCfg,
		Logger:             logger,
		Clock:              clock,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	return server.Run(ctx, cfg, router, logger)
}

// openPendingStore uses Redis when REDIS_URL is set and the in-process store
// otherwise.
func openPendingStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (presence.PendingStore, func(), error) {
	if cfg.RedisURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		rdb, err := store.DialRedis(dialCtx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("pending store: redis")
		return store.NewRedisPending(rdb, logger), func() { _ = rdb.Close() }, nil
	}

	logger.Info("pending store: memory", zap.String("state_file", cfg.PendingStateFile))
	p := store.NewMemoryPendingWithOptions(store.MemoryOptions{StateFile: cfg.PendingStateFile, Logger: logger})
	return p, func() {}, nil
}
