package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	svix "github.com/svix/svix-webhooks/go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"ticketing/entity"
	"ticketing/gateway"
	"ticketing/tracing"
)

type EventsRepository interface {
	Create(ctx context.Context, in entity.EventInput, ownerID string) (entity.Event, error)
	List(ctx context.Context, filter entity.EventFilter) []entity.Event
	Get(ctx context.Context, eventID string) (entity.Event, error)
	Update(ctx context.Context, eventID string, fields map[string]any, requesterID string) (entity.Event, error)
	Delete(ctx context.Context, eventID string, requesterID string) error
}

type TicketsRepository interface {
	ListByUser(ctx context.Context, userID string) ([]entity.UserTicket, error)
}

type BookingService interface {
	Book(ctx context.Context, session entity.Session, eventID string, quantity int) (entity.BookingResult, error)
	Cancel(ctx context.Context, session entity.Session, eventID string) error
	ConfirmCheckout(ctx context.Context, session entity.Session, eventID string, checkoutSessionID string) (entity.BookingStatus, error)
	EventStatus(ctx context.Context, session entity.Session, event entity.Event, flags entity.ReturnFlags) (entity.BookingStatus, error)
}

type UsersRepository interface {
	Create(ctx context.Context, user entity.User) (entity.User, error)
	Update(ctx context.Context, user entity.User) (entity.User, error)
	Delete(ctx context.Context, externalID string) error
}

type IdentityProvider interface {
	SetLocalUserID(ctx context.Context, externalID string, localID string) error
}

type PaymentWebhookParser interface {
	ParseWebhook(payload []byte, signatureHeader string) (gateway.PaymentWebhookEvent, error)
}

type CommandBus interface {
	Send(ctx context.Context, cmd any) error
}

type WebhookDeduplicator interface {
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type Config struct {
	Addr                  string
	SessionSecret         string
	IdentityWebhookSecret string
}

type Server struct {
	addr string
	e    *echo.Echo

	eventsRepo      EventsRepository
	ticketsRepo     TicketsRepository
	usersRepo       UsersRepository
	booking         BookingService
	identity        IdentityProvider
	payments        PaymentWebhookParser
	commandBus      CommandBus
	deduplicator    WebhookDeduplicator
	identityWebhook *svix.Webhook
}

func NewServer(
	config Config,
	eventsRepo EventsRepository,
	ticketsRepo TicketsRepository,
	usersRepo UsersRepository,
	booking BookingService,
	identity IdentityProvider,
	payments PaymentWebhookParser,
	commandBus CommandBus,
	deduplicator WebhookDeduplicator,
) (*Server, error) {
	if config.SessionSecret == "" {
		return nil, errors.New("missing session secret")
	}

	identityWebhook, err := svix.NewWebhook(config.IdentityWebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid identity webhook secret: %w", err)
	}

	e := echoHTTP.NewEcho()
	e.Use(otelecho.Middleware(tracing.ServiceName))

	server := &Server{
		addr:            config.Addr,
		e:               e,
		eventsRepo:      eventsRepo,
		ticketsRepo:     ticketsRepo,
		usersRepo:       usersRepo,
		booking:         booking,
		identity:        identity,
		payments:        payments,
		commandBus:      commandBus,
		deduplicator:    deduplicator,
		identityWebhook: identityWebhook,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/webhooks/payments", server.PostPaymentsWebhook)
	e.POST("/webhooks/identity", server.PostIdentityWebhook)

	session := sessionMiddleware([]byte(config.SessionSecret))

	e.GET("/events", server.GetEvents, session)
	e.GET("/events/:id", server.GetEvent, session)

	e.POST("/events", server.PostEvents, session, requireSession)
	e.PATCH("/events/:id", server.PatchEvent, session, requireSession)
	e.DELETE("/events/:id", server.DeleteEvent, session, requireSession)
	e.POST("/events/:id/tickets", server.PostEventTickets, session, requireSession)
	e.DELETE("/events/:id/tickets", server.DeleteEventTickets, session, requireSession)
	e.POST("/events/:id/checkout/confirm", server.PostCheckoutConfirm, session, requireSession)
	e.GET("/me/tickets", server.GetMyTickets, session, requireSession)

	return server, nil
}

func (s Server) Handler() http.Handler {
	return s.e
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
