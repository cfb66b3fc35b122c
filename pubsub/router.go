package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"ticketing/entity"
	"ticketing/pkg"
	"ticketing/pkg/outbox"
	"ticketing/pubsub/command"
	"ticketing/pubsub/event"
)

const PoisonQueueTopic = "PoisonQueue"

type DataLake interface {
	StoreEvent(ctx context.Context, dataLakeEvent entity.DataLakeEvent) error
}

func NewWatermillRouter(
	postgresSubscriber message.Subscriber,
	redisClient *redis.Client,
	redisPublisher message.Publisher,
	eventProcessorConfig cqrs.EventProcessorConfig,
	eventHandler event.Handler,
	commandProcessorConfig cqrs.CommandProcessorConfig,
	commandHandler command.Handler,
	dataLake DataLake,
	watermillLogger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create router: %w", err)
	}

	if err := useMiddlewares(router, redisPublisher, watermillLogger); err != nil {
		return nil, err
	}

	outbox.AddForwarderHandler(postgresSubscriber, redisPublisher, router, watermillLogger)

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(router, eventProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create event processor: %w", err)
	}

	err = eventProcessor.AddHandlers(
		eventHandler.AddAttendeeHandler(),
		eventHandler.RemoveAttendeeHandler(),
		eventHandler.NotifyTicketGrantedHandler(),
		eventHandler.NotifyTicketCancelledHandler(),
		eventHandler.NotifyCheckoutStartedHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to event processor: %w", err)
	}

	commandProcessor, err := cqrs.NewCommandProcessorWithConfig(router, commandProcessorConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create command processor: %w", err)
	}

	err = commandProcessor.AddHandlers(
		commandHandler.GrantTicketHandler(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not add handlers to command processor: %w", err)
	}

	splitterSubscriber, err := pkg.NewRedisSubscriber(redisClient, "svc-tickets.events_splitter", watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create events splitter subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"events_splitter",
		pkg.EventsTopic,
		splitterSubscriber,
		func(msg *message.Message) error {
			eventName := pkg.Marshaler.NameFromMessage(msg)
			if eventName == "" {
				return fmt.Errorf("could not get event name from message")
			}

			return redisPublisher.Publish(pkg.EventTopic(eventName), msg)
		},
	)

	dataLakeSubscriber, err := pkg.NewRedisSubscriber(redisClient, "svc-tickets.store_to_data_lake", watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("could not create data lake subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"store_to_data_lake",
		pkg.EventsTopic,
		dataLakeSubscriber,
		func(msg *message.Message) error {
			eventName := pkg.Marshaler.NameFromMessage(msg)
			if eventName == "" {
				return fmt.Errorf("could not get event name from message")
			}

			// only the header is needed, the payload is stored as is
			type Event struct {
				Header entity.EventHeader `json:"header"`
			}

			var event Event
			if err := pkg.Marshaler.Unmarshal(msg, &event); err != nil {
				return fmt.Errorf("could not unmarshal event: %w", err)
			}

			return dataLake.StoreEvent(
				msg.Context(),
				entity.DataLakeEvent{
					ID:          event.Header.ID,
					PublishedAt: event.Header.PublishedAt,
					Name:        eventName,
					Payload:     msg.Payload,
				},
			)
		},
	)

	return router, nil
}
