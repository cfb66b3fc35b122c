package pkg

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"ticketing/entity"
)

// EventsTopic receives every external event; the router splits it per event name and stores it in the data lake.
const EventsTopic = "events"

var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

func NewEventBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			event, ok := params.Event.(entity.DomainEvent)
			if !ok {
				return "", fmt.Errorf("invalid event type: %T doesn't implement entity.DomainEvent", params.Event)
			}

			if event.IsInternal() {
				return internalEventTopic(params.EventName), nil
			}

			return EventsTopic, nil
		},
		Marshaler: Marshaler,
	})
}

func NewEventProcessorConfig(rdb *redis.Client, logger watermill.LoggerAdapter) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        rdb,
				ConsumerGroup: "svc-tickets." + params.HandlerName,
			}, logger)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			event, ok := params.EventHandler.NewEvent().(entity.DomainEvent)
			if !ok {
				return "", fmt.Errorf("invalid event type: %T doesn't implement entity.DomainEvent", params.EventHandler.NewEvent())
			}

			if event.IsInternal() {
				return internalEventTopic(params.EventName), nil
			}

			return EventTopic(params.EventName), nil
		},
		Marshaler: Marshaler,
		Logger:    logger,
	}
}

func EventTopic(eventName string) string {
	return EventsTopic + "." + eventName
}

func internalEventTopic(eventName string) string {
	return "internal-events.svc-tickets." + eventName
}
