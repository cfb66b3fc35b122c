package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"

	"ticketing/entity"
	"ticketing/metrics"
)

type EventsRepository interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
}

type TicketsRepository interface {
	Grant(ctx context.Context, ticket entity.Ticket) (entity.Ticket, error)
	Cancel(ctx context.Context, eventID, userID string) error
	ExistsFor(ctx context.Context, eventID, userID string) (bool, error)
	Get(ctx context.Context, eventID, userID string) (entity.Ticket, error)
}

type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, event entity.Event, quantity int, userID string) (entity.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (entity.CheckoutSession, error)
}

type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// Service drives a user through NoTicket -> (AwaitingPayment) -> Ticketed and back.
type Service struct {
	events   EventsRepository
	tickets  TicketsRepository
	payments PaymentProcessor
	eventBus EventBus
}

func NewService(
	events EventsRepository,
	tickets TicketsRepository,
	payments PaymentProcessor,
	eventBus EventBus,
) Service {
	if events == nil {
		panic("missing events repository")
	}
	if tickets == nil {
		panic("missing tickets repository")
	}
	if payments == nil {
		panic("missing payment processor")
	}
	if eventBus == nil {
		panic("missing event bus")
	}

	return Service{
		events:   events,
		tickets:  tickets,
		payments: payments,
		eventBus: eventBus,
	}
}

func (s Service) Book(ctx context.Context, session entity.Session, eventID string, quantity int) (entity.BookingResult, error) {
	if !session.Authenticated() {
		return entity.BookingResult{}, fmt.Errorf("booking requires a session: %w", entity.ErrUnauthorized)
	}
	if quantity < 1 {
		return entity.BookingResult{}, fmt.Errorf("quantity must be at least 1, got %d: %w", quantity, entity.ErrValidation)
	}

	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return entity.BookingResult{}, err
	}

	if event.IsFree() {
		ticket, err := s.GrantTicket(ctx, entity.GrantTicket{
			Header:   entity.NewEventHeader(),
			EventID:  event.ID,
			UserID:   session.UserID,
			Quantity: quantity,
			Source:   entity.TicketSourceFree,
		})
		if err != nil {
			return entity.BookingResult{}, err
		}

		return entity.BookingResult{
			State:  entity.BookingStateTicketed,
			Ticket: &ticket,
		}, nil
	}

	checkout, err := s.createCheckoutSession(ctx, session, event, quantity)
	if err != nil {
		return entity.BookingResult{}, err
	}

	return entity.BookingResult{
		State:       entity.BookingStateAwaitingPayment,
		CheckoutURL: checkout.URL,
	}, nil
}

// CreateCheckoutSession starts a payment for a priced event. Free events are booked directly and rejected here.
func (s Service) CreateCheckoutSession(
	ctx context.Context,
	session entity.Session,
	eventID string,
	quantity int,
) (entity.CheckoutSession, error) {
	if !session.Authenticated() {
		return entity.CheckoutSession{}, fmt.Errorf("checkout requires a session: %w", entity.ErrUnauthorized)
	}
	if quantity < 1 {
		return entity.CheckoutSession{}, fmt.Errorf("quantity must be at least 1, got %d: %w", quantity, entity.ErrValidation)
	}

	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return entity.CheckoutSession{}, err
	}

	return s.createCheckoutSession(ctx, session, event, quantity)
}

func (s Service) createCheckoutSession(
	ctx context.Context,
	session entity.Session,
	event entity.Event,
	quantity int,
) (entity.CheckoutSession, error) {
	if event.IsFree() {
		return entity.CheckoutSession{}, fmt.Errorf("event %s is free, no payment needed: %w", event.ID, entity.ErrValidation)
	}

	exists, err := s.tickets.ExistsFor(ctx, event.ID, session.UserID)
	if err != nil {
		return entity.CheckoutSession{}, err
	}
	if exists {
		return entity.CheckoutSession{}, fmt.Errorf("user %s already holds a ticket for event %s: %w", session.UserID, event.ID, entity.ErrAlreadyBooked)
	}

	checkout, err := s.payments.CreateCheckoutSession(ctx, event, quantity, session.UserID)
	if err != nil {
		return entity.CheckoutSession{}, err
	}
	metrics.CheckoutSessionsCreated.Inc()

	// best effort, the checkout session already exists at this point
	err = s.eventBus.Publish(ctx, entity.CheckoutSessionCreated{
		Header:            entity.NewEventHeaderWithIdempotencyKey(checkout.ID),
		CheckoutSessionID: checkout.ID,
		EventID:           event.ID,
		UserID:            session.UserID,
		Quantity:          quantity,
	})
	if err != nil {
		log.FromContext(ctx).WithError(err).WithField("checkout_session_id", checkout.ID).Warn("Could not publish CheckoutSessionCreated")
	}

	return checkout, nil
}

// GrantTicket is the single write path for tickets, used by free bookings and by payment confirmation.
func (s Service) GrantTicket(ctx context.Context, cmd entity.GrantTicket) (entity.Ticket, error) {
	if cmd.UserID == "" {
		return entity.Ticket{}, fmt.Errorf("ticket requires a user: %w", entity.ErrValidation)
	}
	if cmd.Quantity < 1 {
		return entity.Ticket{}, fmt.Errorf("quantity must be at least 1, got %d: %w", cmd.Quantity, entity.ErrValidation)
	}

	if _, err := s.events.Get(ctx, cmd.EventID); err != nil {
		return entity.Ticket{}, err
	}

	ticketNumber, err := entity.NewTicketNumber()
	if err != nil {
		return entity.Ticket{}, err
	}

	ticket := entity.Ticket{
		ID:           uuid.NewString(),
		EventID:      cmd.EventID,
		UserID:       cmd.UserID,
		TicketNumber: ticketNumber,
		Quantity:     cmd.Quantity,
		Source:       cmd.Source,
	}
	if cmd.CheckoutSessionID != "" {
		checkoutSessionID := cmd.CheckoutSessionID
		ticket.CheckoutSessionID = &checkoutSessionID
		ticket.Source = entity.TicketSourcePaid
	}
	if ticket.Source == "" {
		ticket.Source = entity.TicketSourceFree
	}

	granted, err := s.tickets.Grant(ctx, ticket)
	if err != nil {
		return entity.Ticket{}, err
	}

	log.FromContext(ctx).WithField("ticket_number", granted.TicketNumber).Info("Ticket granted")

	return granted, nil
}

func (s Service) Cancel(ctx context.Context, session entity.Session, eventID string) error {
	if !session.Authenticated() {
		return fmt.Errorf("cancelling requires a session: %w", entity.ErrUnauthorized)
	}

	return s.tickets.Cancel(ctx, eventID, session.UserID)
}

// ConfirmCheckout grants the ticket of a paid checkout session when the user returns before the payment webhook.
func (s Service) ConfirmCheckout(
	ctx context.Context,
	session entity.Session,
	eventID string,
	checkoutSessionID string,
) (entity.BookingStatus, error) {
	if !session.Authenticated() {
		return entity.BookingStatus{}, fmt.Errorf("confirming requires a session: %w", entity.ErrUnauthorized)
	}
	if checkoutSessionID == "" {
		return entity.BookingStatus{}, fmt.Errorf("missing checkout session id: %w", entity.ErrValidation)
	}

	checkout, err := s.payments.GetCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		return entity.BookingStatus{}, err
	}
	if checkout.UserID != session.UserID {
		return entity.BookingStatus{}, fmt.Errorf("checkout session %s belongs to another user: %w", checkout.ID, entity.ErrUnauthorized)
	}
	if checkout.EventID != eventID {
		return entity.BookingStatus{}, fmt.Errorf("checkout session %s is for another event: %w", checkout.ID, entity.ErrValidation)
	}

	if !checkout.Paid {
		return s.Status(ctx, session, eventID, entity.ReturnFlags{Success: true})
	}

	_, err = s.GrantTicket(ctx, entity.GrantTicket{
		Header:            entity.NewEventHeaderWithIdempotencyKey(checkout.ID),
		EventID:           checkout.EventID,
		UserID:            checkout.UserID,
		Quantity:          checkout.Quantity,
		Source:            entity.TicketSourcePaid,
		CheckoutSessionID: checkout.ID,
	})
	if err != nil {
		return entity.BookingStatus{}, err
	}

	return s.Status(ctx, session, eventID, entity.ReturnFlags{Success: true})
}

// Status resolves the booking state of the caller from ticket existence and the checkout return flags.
func (s Service) Status(
	ctx context.Context,
	session entity.Session,
	eventID string,
	flags entity.ReturnFlags,
) (entity.BookingStatus, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return entity.BookingStatus{}, err
	}

	return s.EventStatus(ctx, session, event, flags)
}

// EventStatus is Status for an event the caller has already loaded.
func (s Service) EventStatus(
	ctx context.Context,
	session entity.Session,
	event entity.Event,
	flags entity.ReturnFlags,
) (entity.BookingStatus, error) {
	status := entity.BookingStatus{State: entity.BookingStateNoTicket}
	if !session.Authenticated() {
		return status, nil
	}
	status.IsCreator = event.IsCreator(session.UserID)

	ticket, err := s.tickets.Get(ctx, event.ID, session.UserID)
	switch {
	case err == nil:
		status.State = entity.BookingStateTicketed
		status.HasTicket = true
		status.Quantity = ticket.Quantity
		status.Ticket = &ticket
	case errors.Is(err, entity.ErrNotFound):
		if flags.Success {
			status.State = entity.BookingStateAwaitingPayment
		} else if flags.Canceled {
			status.State = entity.BookingStateCancelled
		}
	default:
		return entity.BookingStatus{}, err
	}

	return status, nil
}
