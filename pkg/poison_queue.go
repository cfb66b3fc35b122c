package pkg

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
)

type PoisonedMessage struct {
	StreamID string
	UUID     string
	Reason   string
	Topic    string
	Handler  string
	Payload  string
}

// PoisonQueue inspects the poison queue stream in place, without a consumer group.
type PoisonQueue struct {
	rdb       redis.Cmdable
	publisher message.Publisher
	topic     string

	unmarshaller redisstream.DefaultMarshallerUnmarshaller
}

func NewPoisonQueue(rdb redis.Cmdable, publisher message.Publisher, topic string) PoisonQueue {
	if rdb == nil {
		panic("missing redis client")
	}
	if publisher == nil {
		panic("missing publisher")
	}

	return PoisonQueue{
		rdb:       rdb,
		publisher: publisher,
		topic:     topic,
	}
}

func (q PoisonQueue) Preview(ctx context.Context) ([]PoisonedMessage, error) {
	entries, err := q.rdb.XRange(ctx, q.topic, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", q.topic, err)
	}

	result := make([]PoisonedMessage, 0, len(entries))
	for _, entry := range entries {
		msg, err := q.unmarshaller.Unmarshal(entry.Values)
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal entry %s: %w", entry.ID, err)
		}

		result = append(result, PoisonedMessage{
			StreamID: entry.ID,
			UUID:     msg.UUID,
			Reason:   msg.Metadata.Get(middleware.ReasonForPoisonedKey),
			Topic:    msg.Metadata.Get(middleware.PoisonedTopicKey),
			Handler:  msg.Metadata.Get(middleware.PoisonedHandlerKey),
			Payload:  string(msg.Payload),
		})
	}

	return result, nil
}

// Remove drops the message with the given UUID for good.
func (q PoisonQueue) Remove(ctx context.Context, messageUUID string) error {
	entry, _, err := q.find(ctx, messageUUID)
	if err != nil {
		return err
	}

	return q.delete(ctx, entry)
}

// Requeue publishes the message back to the topic it was consumed from and removes it from the poison queue.
func (q PoisonQueue) Requeue(ctx context.Context, messageUUID string) error {
	entry, msg, err := q.find(ctx, messageUUID)
	if err != nil {
		return err
	}

	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	if topic == "" {
		return fmt.Errorf("message %s has no origin topic", messageUUID)
	}

	requeued := message.NewMessage(msg.UUID, msg.Payload)
	for k, v := range msg.Metadata {
		switch k {
		case middleware.ReasonForPoisonedKey, middleware.PoisonedTopicKey,
			middleware.PoisonedHandlerKey, middleware.PoisonedSubscriberKey:
			continue
		}
		requeued.Metadata.Set(k, v)
	}
	requeued.SetContext(ctx)

	if err := q.publisher.Publish(topic, requeued); err != nil {
		return fmt.Errorf("could not requeue message %s to %s: %w", messageUUID, topic, err)
	}

	return q.delete(ctx, entry)
}

func (q PoisonQueue) find(ctx context.Context, messageUUID string) (string, *message.Message, error) {
	entries, err := q.rdb.XRange(ctx, q.topic, "-", "+").Result()
	if err != nil {
		return "", nil, fmt.Errorf("could not read %s: %w", q.topic, err)
	}

	for _, entry := range entries {
		msg, err := q.unmarshaller.Unmarshal(entry.Values)
		if err != nil {
			return "", nil, fmt.Errorf("could not unmarshal entry %s: %w", entry.ID, err)
		}
		if msg.UUID == messageUUID {
			return entry.ID, msg, nil
		}
	}

	return "", nil, fmt.Errorf("message %s not found", messageUUID)
}

func (q PoisonQueue) delete(ctx context.Context, streamID string) error {
	if err := q.rdb.XDel(ctx, q.topic, streamID).Err(); err != nil {
		return fmt.Errorf("could not delete entry %s from %s: %w", streamID, q.topic, err)
	}

	return nil
}
