package booking_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/booking"
	"ticketing/entity"
	"ticketing/gateway"
)

var ticketNumberRegexp = regexp.MustCompile(`^TCKT-\d{6}$`)

const (
	freeEventID = "11111111-1111-1111-1111-111111111111"
	paidEventID = "22222222-2222-2222-2222-222222222222"
	// priced, but flagged as free admission for display
	flaggedEventID = "44444444-4444-4444-4444-444444444444"
	creatorID      = "creator"
)

type eventsRepositoryStub struct {
	events map[string]entity.Event
}

func (r eventsRepositoryStub) Get(_ context.Context, eventID string) (entity.Event, error) {
	event, ok := r.events[eventID]
	if !ok {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}
	return event, nil
}

type ticketsRepositoryStub struct {
	lock    sync.Mutex
	tickets map[string]entity.Ticket
}

func ticketKey(eventID, userID string) string {
	return eventID + "/" + userID
}

func (r *ticketsRepositoryStub) Grant(_ context.Context, ticket entity.Ticket) (entity.Ticket, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.tickets == nil {
		r.tickets = make(map[string]entity.Ticket)
	}

	existing, ok := r.tickets[ticketKey(ticket.EventID, ticket.UserID)]
	if ok {
		if existing.CheckoutSessionID != nil && ticket.CheckoutSessionID != nil &&
			*existing.CheckoutSessionID == *ticket.CheckoutSessionID {
			return existing, nil
		}
		return existing, entity.ErrAlreadyBooked
	}

	r.tickets[ticketKey(ticket.EventID, ticket.UserID)] = ticket
	return ticket, nil
}

func (r *ticketsRepositoryStub) Cancel(_ context.Context, eventID, userID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.tickets, ticketKey(eventID, userID))
	return nil
}

func (r *ticketsRepositoryStub) ExistsFor(_ context.Context, eventID, userID string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, ok := r.tickets[ticketKey(eventID, userID)]
	return ok, nil
}

func (r *ticketsRepositoryStub) Get(_ context.Context, eventID, userID string) (entity.Ticket, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ticket, ok := r.tickets[ticketKey(eventID, userID)]
	if !ok {
		return entity.Ticket{}, entity.ErrNotFound
	}
	return ticket, nil
}

func (r *ticketsRepositoryStub) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.tickets)
}

type eventBusStub struct {
	lock      sync.Mutex
	published []any
	err       error
}

func (b *eventBusStub) Publish(_ context.Context, event any) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, event)
	return nil
}

type fixture struct {
	service  booking.Service
	tickets  *ticketsRepositoryStub
	payments *gateway.StripeMock
	eventBus *eventBusStub
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	events := eventsRepositoryStub{events: map[string]entity.Event{
		freeEventID: {
			ID:            freeEventID,
			Title:         "Community meetup",
			AdmissionFree: true,
			CreatorID:     creatorID,
		},
		paidEventID: {
			ID:        paidEventID,
			Title:     "Conference",
			Price:     decimal.RequireFromString("49.90"),
			CreatorID: creatorID,
		},
		flaggedEventID: {
			ID:            flaggedEventID,
			Title:         "Gala",
			Price:         decimal.NewFromInt(25),
			AdmissionFree: true,
			CreatorID:     creatorID,
		},
	}}

	tickets := &ticketsRepositoryStub{}
	payments := &gateway.StripeMock{}
	eventBus := &eventBusStub{}

	return fixture{
		service:  booking.NewService(events, tickets, payments, eventBus),
		tickets:  tickets,
		payments: payments,
		eventBus: eventBus,
	}
}

func TestService_Book_free_event(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Book(ctx, entity.Session{UserID: "user-1"}, freeEventID, 2)
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStateTicketed, result.State)
	require.NotNil(t, result.Ticket)
	assert.Equal(t, 2, result.Ticket.Quantity)
	assert.Equal(t, entity.TicketSourceFree, result.Ticket.Source)
	assert.Regexp(t, ticketNumberRegexp, result.Ticket.TicketNumber)
	assert.Empty(t, result.CheckoutURL)

	assert.Equal(t, 1, f.tickets.count())
	assert.Zero(t, f.payments.SessionsCount())
}

func TestService_Book_free_event_twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := entity.Session{UserID: "user-1"}

	_, err := f.service.Book(ctx, session, freeEventID, 1)
	require.NoError(t, err)

	_, err = f.service.Book(ctx, session, freeEventID, 1)
	assert.ErrorIs(t, err, entity.ErrAlreadyBooked)
	assert.Equal(t, 1, f.tickets.count())
}

func TestService_Book_paid_event(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Book(ctx, entity.Session{UserID: "user-1"}, paidEventID, 3)
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStateAwaitingPayment, result.State)
	assert.NotEmpty(t, result.CheckoutURL)
	assert.Nil(t, result.Ticket)

	assert.Zero(t, f.tickets.count(), "tickets for paid events are granted only after payment")
	assert.Equal(t, 1, f.payments.SessionsCount())

	require.Len(t, f.eventBus.published, 1)
	created, ok := f.eventBus.published[0].(entity.CheckoutSessionCreated)
	require.True(t, ok)
	assert.Equal(t, paidEventID, created.EventID)
	assert.Equal(t, 3, created.Quantity)
}

func TestService_Book_priced_event_flagged_free_requires_payment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Book(ctx, entity.Session{UserID: "user-1"}, flaggedEventID, 2)
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStateAwaitingPayment, result.State)
	assert.NotEmpty(t, result.CheckoutURL)
	assert.Nil(t, result.Ticket)
	assert.Zero(t, f.tickets.count())
	assert.Equal(t, 1, f.payments.SessionsCount())

	_, err = f.service.CreateCheckoutSession(ctx, entity.Session{UserID: "user-2"}, flaggedEventID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.payments.SessionsCount())
}

func TestService_Book_paid_event_already_ticketed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.GrantTicket(ctx, entity.GrantTicket{
		EventID:           paidEventID,
		UserID:            "user-1",
		Quantity:          1,
		CheckoutSessionID: "cs_1",
	})
	require.NoError(t, err)

	_, err = f.service.Book(ctx, entity.Session{UserID: "user-1"}, paidEventID, 1)
	assert.ErrorIs(t, err, entity.ErrAlreadyBooked)
	assert.Zero(t, f.payments.SessionsCount())
}

func TestService_Book_publish_failure_does_not_fail_checkout(t *testing.T) {
	f := newFixture(t)
	f.eventBus.err = errors.New("redis is down")

	result, err := f.service.Book(context.Background(), entity.Session{UserID: "user-1"}, paidEventID, 1)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStateAwaitingPayment, result.State)
}

func TestService_Book_errors(t *testing.T) {
	testCases := []struct {
		Name        string
		Session     entity.Session
		EventID     string
		Quantity    int
		ExpectedErr error
	}{
		{
			Name:        "no_session",
			EventID:     freeEventID,
			Quantity:    1,
			ExpectedErr: entity.ErrUnauthorized,
		},
		{
			Name:        "zero_quantity",
			Session:     entity.Session{UserID: "user-1"},
			EventID:     freeEventID,
			Quantity:    0,
			ExpectedErr: entity.ErrValidation,
		},
		{
			Name:        "unknown_event",
			Session:     entity.Session{UserID: "user-1"},
			EventID:     "33333333-3333-3333-3333-333333333333",
			Quantity:    1,
			ExpectedErr: entity.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.service.Book(context.Background(), tc.Session, tc.EventID, tc.Quantity)
			assert.ErrorIs(t, err, tc.ExpectedErr)
			assert.Zero(t, f.tickets.count())
		})
	}
}

func TestService_Book_payment_failure(t *testing.T) {
	f := newFixture(t)
	f.payments.Err = errors.New("processor unavailable")

	_, err := f.service.Book(context.Background(), entity.Session{UserID: "user-1"}, paidEventID, 1)
	assert.ErrorIs(t, err, entity.ErrPayment)
}

func TestService_CreateCheckoutSession_free_event(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateCheckoutSession(context.Background(), entity.Session{UserID: "user-1"}, freeEventID, 1)
	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Zero(t, f.payments.SessionsCount())
}

func TestService_GrantTicket_paid_redelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := entity.GrantTicket{
		Header:            entity.NewEventHeaderWithIdempotencyKey("cs_1"),
		EventID:           paidEventID,
		UserID:            "user-1",
		Quantity:          2,
		CheckoutSessionID: "cs_1",
	}

	first, err := f.service.GrantTicket(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, entity.TicketSourcePaid, first.Source)

	second, err := f.service.GrantTicket(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.tickets.count())
}

func TestService_GrantTicket_unknown_event(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GrantTicket(context.Background(), entity.GrantTicket{
		EventID:  "33333333-3333-3333-3333-333333333333",
		UserID:   "user-1",
		Quantity: 1,
	})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := entity.Session{UserID: "user-1"}

	_, err := f.service.Book(ctx, session, freeEventID, 1)
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(ctx, session, freeEventID))
	assert.Zero(t, f.tickets.count())

	// nothing left to cancel
	require.NoError(t, f.service.Cancel(ctx, session, freeEventID))

	err = f.service.Cancel(ctx, entity.Session{}, freeEventID)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)
}

func TestService_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Book(ctx, entity.Session{UserID: "ticketed"}, freeEventID, 4)
	require.NoError(t, err)

	testCases := []struct {
		Name      string
		Session   entity.Session
		Flags     entity.ReturnFlags
		Expected  entity.BookingState
		HasTicket bool
		Quantity  int
		IsCreator bool
	}{
		{
			Name:     "anonymous",
			Expected: entity.BookingStateNoTicket,
		},
		{
			Name:     "no_ticket",
			Session:  entity.Session{UserID: "user-1"},
			Expected: entity.BookingStateNoTicket,
		},
		{
			Name:     "returned_from_successful_checkout_before_webhook",
			Session:  entity.Session{UserID: "user-1"},
			Flags:    entity.ReturnFlags{Success: true},
			Expected: entity.BookingStateAwaitingPayment,
		},
		{
			Name:     "returned_from_canceled_checkout",
			Session:  entity.Session{UserID: "user-1"},
			Flags:    entity.ReturnFlags{Canceled: true},
			Expected: entity.BookingStateCancelled,
		},
		{
			Name:      "ticketed",
			Session:   entity.Session{UserID: "ticketed"},
			Flags:     entity.ReturnFlags{Canceled: true},
			Expected:  entity.BookingStateTicketed,
			HasTicket: true,
			Quantity:  4,
		},
		{
			Name:      "creator",
			Session:   entity.Session{UserID: creatorID},
			Expected:  entity.BookingStateNoTicket,
			IsCreator: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			status, err := f.service.Status(ctx, tc.Session, freeEventID, tc.Flags)
			require.NoError(t, err)

			assert.Equal(t, tc.Expected, status.State)
			assert.Equal(t, tc.HasTicket, status.HasTicket)
			assert.Equal(t, tc.Quantity, status.Quantity)
			assert.Equal(t, tc.IsCreator, status.IsCreator)
		})
	}
}

func TestService_EventStatus_uses_loaded_event(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// not known to the events repository, so any lookup would fail with ErrNotFound
	event := entity.Event{ID: "55555555-5555-5555-5555-555555555555", CreatorID: "host"}

	status, err := f.service.EventStatus(ctx, entity.Session{UserID: "host"}, event, entity.ReturnFlags{Success: true})
	require.NoError(t, err)
	assert.True(t, status.IsCreator)
	assert.Equal(t, entity.BookingStateAwaitingPayment, status.State)

	_, err = f.service.Status(ctx, entity.Session{UserID: "host"}, event.ID, entity.ReturnFlags{})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestService_ConfirmCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := entity.Session{UserID: "user-1"}

	_, err := f.service.Book(ctx, session, paidEventID, 2)
	require.NoError(t, err)

	created := f.eventBus.published[0].(entity.CheckoutSessionCreated)

	status, err := f.service.ConfirmCheckout(ctx, session, paidEventID, created.CheckoutSessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStateAwaitingPayment, status.State)
	assert.Zero(t, f.tickets.count())

	f.payments.MarkPaid(created.CheckoutSessionID)

	status, err = f.service.ConfirmCheckout(ctx, session, paidEventID, created.CheckoutSessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStateTicketed, status.State)
	assert.Equal(t, 2, status.Quantity)

	// the payment webhook arriving afterwards is a no-op
	_, err = f.service.GrantTicket(ctx, entity.GrantTicket{
		EventID:           paidEventID,
		UserID:            "user-1",
		Quantity:          2,
		CheckoutSessionID: created.CheckoutSessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.tickets.count())
}

func TestService_ConfirmCheckout_foreign_session(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Book(ctx, entity.Session{UserID: "user-1"}, paidEventID, 1)
	require.NoError(t, err)

	created := f.eventBus.published[0].(entity.CheckoutSessionCreated)
	f.payments.MarkPaid(created.CheckoutSessionID)

	_, err = f.service.ConfirmCheckout(ctx, entity.Session{UserID: "user-2"}, paidEventID, created.CheckoutSessionID)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)

	_, err = f.service.ConfirmCheckout(ctx, entity.Session{UserID: "user-1"}, freeEventID, created.CheckoutSessionID)
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = f.service.ConfirmCheckout(ctx, entity.Session{UserID: "user-1"}, paidEventID, "cs_unknown")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	assert.Zero(t, f.tickets.count())
}
