package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisConnectTimeout = 10 * time.Second

// RedisClients holds the job queue connection, where every serve worker
// parks in BLPOP, and a separate one for progress pub/sub.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

// NewRedisClients connects both clients and pings them. The queue pool gets
// one connection per worker on top of what enqueueing and locking need.
func NewRedisClients(ctx context.Context, redisURL string, workers int) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	queueOpt := *opt
	queueOpt.PoolSize = max(opt.PoolSize, workers+4)
	queue, err := connectRedis(ctx, "queue", &queueOpt)
	if err != nil {
		return nil, err
	}

	pubsubOpt := *opt
	pubsub, err := connectRedis(ctx, "pubsub", &pubsubOpt)
	if err != nil {
		queue.Close()
		return nil, err
	}

	return &RedisClients{Queue: queue, PubSub: pubsub}, nil
}

func connectRedis(ctx context.Context, role string, opt *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opt)
	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s at %s: %w", role, opt.Addr, err)
	}
	slog.Info("redis connected",
		slog.String("role", role),
		slog.String("addr", opt.Addr),
		slog.Int("db", opt.DB),
		slog.Int("pool_size", opt.PoolSize),
		slog.Duration("latency", time.Since(start)))
	return client, nil
}

func (r *RedisClients) Close() error {
	return errors.Join(r.Queue.Close(), r.PubSub.Close())
}
