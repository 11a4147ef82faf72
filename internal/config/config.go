package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Port         int
	MasterSecret string
	GinMode      string
	TLSCertFile  string
	TLSKeyFile   string

	SweepInterval          time.Duration
	SweepBroadcastPresence bool
	PendingStateFile       string

	RedisURL      string
	MongoURI      string
	MongoDatabase string
	NATSURL       string

	LogLevel           string
	RateLimitPerMinute int
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:               3000,
		GinMode:            "release",
		SweepInterval:      60 * time.Second,
		MongoDatabase:      "social",
		LogLevel:           "info",
		RateLimitPerMinute: 120,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, errors.New("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterSecret = env.Getenv("MASTER_SECRET")
	if cfg.MasterSecret == "" {
		return Config{}, errors.New("MASTER_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return Config{}, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if raw := env.Getenv("SWEEP_INTERVAL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, errors.New("invalid SWEEP_INTERVAL_SECONDS")
		}
		cfg.SweepInterval = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("SWEEP_BROADCAST_PRESENCE"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, errors.New("invalid SWEEP_BROADCAST_PRESENCE")
		}
		cfg.SweepBroadcastPresence = v
	}

	cfg.PendingStateFile = env.Getenv("PENDING_STATE_FILE")
	cfg.RedisURL = env.Getenv("REDIS_URL")
	cfg.MongoURI = env.Getenv("MONGO_URI")
	if raw := env.Getenv("MONGO_DATABASE"); raw != "" {
		cfg.MongoDatabase = raw
	}
	cfg.NATSURL = env.Getenv("NATS_URL")

	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		if _, err := zapcore.ParseLevel(raw); err != nil {
			return Config{}, errors.New("invalid LOG_LEVEL")
		}
		cfg.LogLevel = raw
	}

	if raw := env.Getenv("RATE_LIMIT_PER_MINUTE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, errors.New("invalid RATE_LIMIT_PER_MINUTE")
		}
		cfg.RateLimitPerMinute = n
	}

	return cfg, nil
}
