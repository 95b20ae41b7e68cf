/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/marquee/internal/events"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// CommandChannel receives commands; EventsChannel carries replies and
	// mirrored events.
	CommandChannel string
	EventsChannel  string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RetryInterval is the wait before resubscribing after a failure.
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		CommandChannel: "marquee:commands",
		EventsChannel:  "marquee:events",
		PoolSize:       4,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		RetryInterval:  30 * time.Second,
	}
}

// RedisSource receives commands over Redis pub/sub.
type RedisSource struct {
	cfg    RedisConfig
	client *redis.Client
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger
}

// NewRedisSource creates a Redis command source. The connection is made
// lazily in Run, so an absent Redis never blocks startup.
func NewRedisSource(cfg RedisConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) *RedisSource {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &RedisSource{
		cfg:    cfg,
		client: client,
		bus:    bus,
		nodeID: nodeID,
		logger: logger.With().Str("transport", "redis").Logger(),
	}
}

// Name implements Source.
func (rs *RedisSource) Name() string { return "redis" }

// Run subscribes to the command channel, resubscribing after failures,
// until ctx ends.
func (rs *RedisSource) Run(ctx context.Context, handle Handler) error {
	defer rs.client.Close()

	mirrored := make(chan struct{})
	go func() {
		defer close(mirrored)
		forward(ctx, rs.bus, rs.publish, rs.logger)
	}()
	defer func() { <-mirrored }()

	for {
		err := rs.subscribe(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		rs.logger.Warn().Err(err).Dur("retry_in", rs.cfg.RetryInterval).Msg("redis command channel down")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rs.cfg.RetryInterval):
		}
	}
}

func (rs *RedisSource) subscribe(ctx context.Context, handle Handler) error {
	pubsub := rs.client.Subscribe(ctx, rs.cfg.CommandChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", rs.cfg.CommandChannel, err)
	}
	rs.logger.Info().Str("addr", rs.cfg.Addr).Str("channel", rs.cfg.CommandChannel).Msg("redis command channel subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis channel closed")
			}
			reply := handle(ctx, []byte(msg.Payload), rs.Name())
			if reply != nil {
				if err := rs.publish(events.EventCommandReply, events.Payload(reply)); err != nil {
					rs.logger.Error().Err(err).Msg("failed to publish reply")
				}
			}
		}
	}
}

func (rs *RedisSource) publish(eventType events.EventType, payload events.Payload) error {
	data, err := marshalEnvelope(eventType, payload, rs.nodeID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rs.client.Publish(ctx, rs.cfg.EventsChannel, data).Err()
}
