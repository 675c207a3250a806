// Package redisbus is the Redis-backed replication transport, used when the
// windows of a session are separate OS processes. All envelopes of one
// session travel on a single Redis pub/sub channel; Redis delivers per
// publisher in publish order, which is exactly the per-sender FIFO the
// replicator requires. Like the in-process bus there is no persistence: a
// subscriber connected after a publish never sees it.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tahtiseq/tahti/studio"
)

// DefaultChannel is the Redis channel envelopes are broadcast on when the
// session does not name its own.
const DefaultChannel = "tahti.replicate"

type Bus struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func New(rdb *redis.Client, channel string, log *zap.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{rdb: rdb, channel: channel, log: log}
}

func (b *Bus) Publish(env studio.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := b.rdb.Publish(context.Background(), b.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing envelope: %w", err)
	}
	return nil
}

// Subscribe starts a delivery goroutine for the channel. The subscription
// is confirmed before Subscribe returns, so an envelope published after a
// successful Subscribe is guaranteed to reach the handler. The returned
// function stops delivery and tears the goroutine down.
func (b *Bus) Subscribe(fn func(studio.Envelope)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to %q: %w", b.channel, err)
	}
	go func() {
		for msg := range sub.Channel() {
			var env studio.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("dropping malformed envelope", zap.Error(err))
				continue
			}
			fn(env)
		}
	}()
	return func() {
		_ = sub.Close()
		cancel()
	}, nil
}
