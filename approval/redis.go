package approval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis channel and NATS subject approvals arrive on.
const DefaultChannel = "pipeline.approvals"

type redisPubSub interface {
	Channel(...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type redisClient interface {
	Subscribe(ctx context.Context, channels ...string) redisPubSub
	Close() error
}

// RedisSource receives JSON signals from a redis pub/sub channel.
type RedisSource struct {
	client  redisClient
	channel string

	Logger *slog.Logger
}

// NewRedisSource connects to the redis server at url (redis://host:port/db).
func NewRedisSource(url, channel string) (*RedisSource, error) {
	if url == "" {
		url = "redis://127.0.0.1:6379"
	}
	if channel == "" {
		channel = DefaultChannel
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisSource{
		client:  &redisClientAdapter{Client: redis.NewClient(opts)},
		channel: channel,
	}, nil
}

// Listen implements Source.
func (s *RedisSource) Listen(ctx context.Context, h Handler) error {
	logger := loggerOrDefault(s.Logger)
	ps := s.client.Subscribe(ctx, s.channel)
	if ps == nil {
		return fmt.Errorf("subscribe %s: no subscription", s.channel)
	}
	defer ps.Close()

	logger.Info("listening for approvals", "source", "redis", "channel", s.channel)
	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrSourceClosed
			}
			dispatch(ctx, logger, "redis", []byte(msg.Payload), h)
		}
	}
}

// Close releases the redis connection.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

type redisClientAdapter struct {
	*redis.Client
}

func (r *redisClientAdapter) Subscribe(ctx context.Context, channels ...string) redisPubSub {
	return r.Client.Subscribe(ctx, channels...)
}
