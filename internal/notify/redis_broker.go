package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroker publishes events on a Redis channel and relays everything it
// receives on that channel into the local Hub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     zerolog.Logger
}

func NewRedisBroker(client *redis.Client, channel string, hub *Hub, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     log.With().Str("component", "notify_broker").Logger(),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run relays messages until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info().Str("channel", b.channel).Msg("relaying notifications")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *RedisBroker) relay(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.log.Warn().Err(err).Msg("dropping malformed notification")
		return
	}
	n := b.hub.Deliver(event)
	b.log.Debug().
		Str("account_id", event.AccountID.String()).
		Str("type", string(event.Type)).
		Int("delivered", n).
		Msg("notification relayed")
}
