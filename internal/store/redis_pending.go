package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"social-realtime/internal/model"
)

const pendingKeyPrefix = "social:pending:"

// pending key: social:pending:<user>
// Value: list of JSON encoded deliveries, oldest first
func pendingKey(userID string) string { return pendingKeyPrefix + userID }

// RedisPending keeps one Redis list per user so queued deliveries outlive the
// process and can be shared by several instances.
type RedisPending struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

func NewRedisPending(rdb redis.UniversalClient, log *zap.Logger) *RedisPending {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPending{rdb: rdb, log: log.Named("pending")}
}

// DialRedis builds a client from a URL such as "redis://localhost:6379/0"
// and checks that it answers.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func (r *RedisPending) Enqueue(ctx context.Context, userID string, d model.Delivery) error {
	if userID == "" {
		return errors.New("missing userID")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode delivery")
	}
	if err := r.rdb.RPush(ctx, pendingKey(userID), data).Err(); err != nil {
		return errors.Wrapf(err, "rpush %s", pendingKey(userID))
	}
	return nil
}

// Drain reads and deletes the list in one MULTI/EXEC so two concurrent
// drains never both see the same entry.
func (r *RedisPending) Drain(ctx context.Context, userID string) ([]model.Delivery, error) {
	key := pendingKey(userID)

	var lrange *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "drain %s", key)
	}

	raw := lrange.Val()
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]model.Delivery, 0, len(raw))
	for _, item := range raw {
		var d model.Delivery
		if err := json.Unmarshal([]byte(item), &d); err != nil || !d.Valid() {
			r.log.Warn("discarding undecodable pending entry", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisPending) Len(ctx context.Context, userID string) (int, error) {
	n, err := r.rdb.LLen(ctx, pendingKey(userID)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "llen %s", pendingKey(userID))
	}
	return int(n), nil
}
