package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const channelPrefix = "dataroom:events:"

// RedisBridge relays notifications through Redis pub/sub so that
// subscribers on one instance see changes written on another. Publish sends
// to Redis; Run pumps everything received from Redis into the local broker.
type RedisBridge struct {
	client *redis.Client
	broker *Broker
	logger *logrus.Logger
}

// NewRedisBridge creates a bridge between Redis and a local broker.
func NewRedisBridge(client *redis.Client, broker *Broker, logger *logrus.Logger) *RedisBridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisBridge{client: client, broker: broker, logger: logger}
}

// Publish implements Sink by sending the notification to Redis. Local
// subscribers receive it when Run pumps it back in.
func (b *RedisBridge) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	channel := channelPrefix + n.ResourceType + ":" + n.ResourceID
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification to redis: %w", err)
	}
	return nil
}

// Run subscribes to all notification channels and feeds the local broker
// until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				b.logger.WithError(err).WithField("channel", msg.Channel).
					Warn("dropping malformed notification from redis")
				continue
			}
			if err := b.broker.Publish(ctx, n); err != nil {
				b.logger.WithError(err).Warn("failed to fan out notification")
			}
		}
	}
}
