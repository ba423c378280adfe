// Package publish delivers scan events to a pub/sub broker. Delivery is best
// effort: a failed publish is logged and reported as false, never retried.
package publish

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
)

const (
	// BackendNone disables publishing.
	BackendNone = "none"
	// BackendRedis publishes through Redis PUBLISH.
	BackendRedis = "redis"

	defaultPublishTimeout = 2 * time.Second
)

// Publisher is satisfied by every backend in this package.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) bool
	Close() error
}

// publishClient is the subset of the Redis client the publisher needs.
type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes events on Redis channels.
type RedisPublisher struct {
	client  publishClient
	timeout time.Duration
	logger  *logging.Logger
}

// NewRedisPublisher connects to the configured Redis server. A failed ping is
// returned so the caller can decide whether to run without events.
func NewRedisPublisher(ctx context.Context, cfg config.PublishConfig) (*RedisPublisher, error) {
	client := redis.NewClient(redisOptions(cfg))

	p := newRedisPublisher(client)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapScanError(errors.CodePublishFailed,
			"failed to connect to redis at "+cfg.RedisAddr, err)
	}
	p.logger.Info("Connected to event broker", "addr", cfg.RedisAddr)
	return p, nil
}

// redisOptions builds client options. MaxRetries -1 turns off the client's
// own retries so each publish is attempted once.
func redisOptions(cfg config.PublishConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultPublishTimeout,
		WriteTimeout: defaultPublishTimeout,
		MaxRetries:   -1,
	}
}

func newRedisPublisher(client publishClient) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		timeout: defaultPublishTimeout,
		logger:  logging.Default().WithComponent("publish"),
	}
}

// Publish sends payload on topic. It reports false when the broker rejects
// the message or cannot be reached.
func (p *RedisPublisher) Publish(ctx context.Context, topic, payload string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		p.logger.Warn("Failed to publish event", "topic", topic, "error", err)
		return false
	}
	return true
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Nop drops every event. It is used when publishing is disabled.
type Nop struct{}

// Publish discards the event and reports success.
func (Nop) Publish(context.Context, string, string) bool { return true }

// Close does nothing.
func (Nop) Close() error { return nil }

// New returns the publisher selected by cfg.
func New(ctx context.Context, cfg config.PublishConfig) (Publisher, error) {
	switch cfg.Backend {
	case BackendRedis:
		p, err := NewRedisPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendNone, "":
		return Nop{}, nil
	default:
		return nil, errors.ErrConfigInvalid("publish.backend", cfg.Backend)
	}
}
