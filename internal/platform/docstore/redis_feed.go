package docstore

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultChangeChannel is the Redis pub/sub channel used for change events.
const DefaultChangeChannel = "woundcare:docstore:changes"

// RedisFeed relays changes between server instances through Redis pub/sub.
// Local subscribers see local writes immediately and remote writes once
// they arrive from Redis.
type RedisFeed struct {
	local   *LocalFeed
	client  *redis.Client
	channel string
	origin  string
	logger  zerolog.Logger
}

// NewRedisFeed creates a RedisFeed. Call Run to start relaying remote changes.
func NewRedisFeed(client *redis.Client, channel string, logger zerolog.Logger) *RedisFeed {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &RedisFeed{
		local:   NewLocalFeed(),
		client:  client,
		channel: channel,
		origin:  uuid.New().String(),
		logger:  logger.With().Str("component", "redis-feed").Logger(),
	}
}

func (f *RedisFeed) Publish(c Change) {
	f.local.Publish(c)

	c.Origin = f.origin
	payload, err := json.Marshal(c)
	if err != nil {
		f.logger.Error().Err(err).Str("path", c.Path).Msg("failed to encode change")
		return
	}
	if err := f.client.Publish(context.Background(), f.channel, payload).Err(); err != nil {
		f.logger.Warn().Err(err).Str("path", c.Path).Msg("failed to publish change")
	}
}

func (f *RedisFeed) Subscribe(fn func(Change)) func() {
	return f.local.Subscribe(fn)
}

// Run receives changes from other instances until ctx is cancelled.
func (f *RedisFeed) Run(ctx context.Context) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	f.logger.Info().Str("channel", f.channel).Msg("listening for remote changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				f.logger.Warn().Err(err).Msg("dropping malformed change")
				continue
			}
			if c.Origin == f.origin {
				continue
			}
			f.local.Publish(c)
		}
	}
}
