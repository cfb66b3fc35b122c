package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ticketing/booking"
	"ticketing/db"
	"ticketing/db/data_lake"
	"ticketing/db/events"
	"ticketing/db/tickets"
	"ticketing/db/users"
	"ticketing/http"
	"ticketing/pkg"
	"ticketing/pkg/outbox"
	"ticketing/pubsub"
	"ticketing/pubsub/command"
	"ticketing/pubsub/event"
)

type Config struct {
	HTTPAddr              string
	SessionSecret         string
	IdentityWebhookSecret string
}

type Service struct {
	db              *sqlx.DB
	watermillLogger watermill.LoggerAdapter
	watermillRouter *message.Router
	httpServer      *http.Server
}

func New(
	config Config,
	dbConn *sqlx.DB,
	redisClient *redis.Client,
	payments booking.PaymentProcessor,
	paymentWebhooks http.PaymentWebhookParser,
	identity http.IdentityProvider,
	notifier event.Notifier,
) (Service, error) {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	var redisPublisher message.Publisher
	redisPublisher = pkg.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventBus, err := pkg.NewEventBus(redisPublisher)
	if err != nil {
		return Service{}, fmt.Errorf("could not create event bus: %w", err)
	}

	commandBus, err := pkg.NewCommandBus(redisPublisher)
	if err != nil {
		return Service{}, fmt.Errorf("could not create command bus: %w", err)
	}

	eventsRepo := events.NewPostgresRepository(dbConn)
	ticketsRepo := tickets.NewPostgresRepository(dbConn)
	usersRepo := users.NewPostgresRepository(dbConn)
	dataLake := data_lake.NewDataLake(dbConn)

	bookingService := booking.NewService(eventsRepo, ticketsRepo, payments, eventBus)

	watermillRouter, err := pubsub.NewWatermillRouter(
		outbox.NewPostgresSubscriber(dbConn.DB, watermillLogger),
		redisClient,
		redisPublisher,
		pkg.NewEventProcessorConfig(redisClient, watermillLogger),
		event.NewHandler(eventsRepo, notifier),
		pkg.NewCommandProcessorConfig(redisClient, watermillLogger),
		command.NewHandler(bookingService),
		dataLake,
		watermillLogger,
	)
	if err != nil {
		return Service{}, fmt.Errorf("could not create watermill router: %w", err)
	}

	httpServer, err := http.NewServer(
		http.Config{
			Addr:                  config.HTTPAddr,
			SessionSecret:         config.SessionSecret,
			IdentityWebhookSecret: config.IdentityWebhookSecret,
		},
		eventsRepo,
		ticketsRepo,
		usersRepo,
		bookingService,
		identity,
		paymentWebhooks,
		commandBus,
		pkg.NewWebhookDeduplicator(redisClient, pkg.DefaultWebhookDedupTTL),
	)
	if err != nil {
		return Service{}, fmt.Errorf("could not create http server: %w", err)
	}

	return Service{
		db:              dbConn,
		watermillLogger: watermillLogger,
		watermillRouter: watermillRouter,
		httpServer:      httpServer,
	}, nil
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := outbox.InitializeSchema(s.db.DB, s.watermillLogger); err != nil {
		return fmt.Errorf("failed to initialize outbox schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		// the service is not healthy before the router is ready
		<-s.watermillRouter.Running()

		return s.httpServer.Run(ctx)
	})

	return g.Wait()
}
