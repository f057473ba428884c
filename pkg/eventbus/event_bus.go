// Package eventbus publishes run lifecycle events over a watermill channel.
// The product is a single process, so the channel is in-memory; consumers
// (run-history writers, the editor's live view) subscribe in-process.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/jedilord/openalgo-flow/pkg/events"
)

const eventTypeMetadataKey = "event_type"

// Event is anything publishable on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler consumes one decoded event.
type EventHandler func(ctx context.Context, eventType events.EventType, payload []byte) error

// EventBus is the publish/subscribe surface the engine and consumers share.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handler EventHandler) error
	Close() error
	GenerateID() string
}

// ChannelEventBus is the in-memory watermill implementation.
type ChannelEventBus struct {
	pubSub *gochannel.GoChannel
	logger *slog.Logger
}

// NewChannelEventBus creates the in-process event bus.
func NewChannelEventBus(logger *slog.Logger) *ChannelEventBus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1000,
			Persistent:          false,
		},
		watermill.NewSlogLogger(logger),
	)

	return &ChannelEventBus{
		pubSub: pubSub,
		logger: logger.With("module", "event_bus"),
	}
}

// Publish serializes the event and publishes it on the execution topic.
func (b *ChannelEventBus) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.GetType(), err)
	}

	msg := message.NewMessage(b.GenerateID(), payload)
	msg.Metadata.Set(eventTypeMetadataKey, string(event.GetType()))

	return b.pubSub.Publish(events.Topic, msg)
}

// Subscribe pumps incoming events through the handler until ctx is done.
func (b *ChannelEventBus) Subscribe(ctx context.Context, handler EventHandler) error {
	messages, err := b.pubSub.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(eventTypeMetadataKey))

			if err := handler(ctx, eventType, msg.Payload); err != nil {
				b.logger.Error("Event handler failed", "event_type", eventType, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

// Close shuts the underlying channel down.
func (b *ChannelEventBus) Close() error {
	return b.pubSub.Close()
}

// GenerateID returns a new message ID.
func (b *ChannelEventBus) GenerateID() string {
	return uuid.New().String()
}
