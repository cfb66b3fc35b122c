package http_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/entity"
	"ticketing/gateway"
	ticketsHttp "ticketing/http"
)

const (
	testSessionSecret  = "session-secret"
	testPaymentsSecret = "whsec_payments_test"
	// svix secrets are base64 after the prefix
	testIdentitySecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

type eventsRepositoryStub struct {
	lock     sync.Mutex
	events   map[string]entity.Event
	err      error
	getCalls int
}

func (r *eventsRepositoryStub) Create(_ context.Context, in entity.EventInput, ownerID string) (entity.Event, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := in.Validate(); err != nil {
		return entity.Event{}, err
	}
	if r.events == nil {
		r.events = make(map[string]entity.Event)
	}

	event := entity.Event{ID: uuid.NewString(), Title: in.Title, Date: in.Date, Price: in.Price, CreatorID: ownerID}
	r.events[event.ID] = event
	return event, nil
}

func (r *eventsRepositoryStub) List(_ context.Context, _ entity.EventFilter) []entity.Event {
	r.lock.Lock()
	defer r.lock.Unlock()

	events := []entity.Event{}
	for _, event := range r.events {
		events = append(events, event)
	}
	return events
}

func (r *eventsRepositoryStub) Get(_ context.Context, eventID string) (entity.Event, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.getCalls++

	event, ok := r.events[eventID]
	if !ok {
		return entity.Event{}, entity.ErrNotFound
	}
	return event, nil
}

func (r *eventsRepositoryStub) Update(_ context.Context, eventID string, fields map[string]any, requesterID string) (entity.Event, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	event, ok := r.events[eventID]
	if !ok {
		return entity.Event{}, entity.ErrNotFound
	}
	if !event.IsCreator(requesterID) {
		return entity.Event{}, entity.ErrUnauthorized
	}
	if title, ok := fields["title"].(string); ok {
		event.Title = title
	}
	r.events[eventID] = event
	return event, nil
}

func (r *eventsRepositoryStub) Delete(_ context.Context, eventID string, requesterID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.err != nil {
		return r.err
	}
	event, ok := r.events[eventID]
	if !ok {
		return entity.ErrNotFound
	}
	if !event.IsCreator(requesterID) {
		return entity.ErrUnauthorized
	}
	delete(r.events, eventID)
	return nil
}

type ticketsRepositoryStub struct{}

func (ticketsRepositoryStub) ListByUser(_ context.Context, _ string) ([]entity.UserTicket, error) {
	return []entity.UserTicket{}, nil
}

type bookingStub struct {
	result entity.BookingResult
	err    error
}

func (b bookingStub) Book(_ context.Context, _ entity.Session, _ string, _ int) (entity.BookingResult, error) {
	return b.result, b.err
}

func (b bookingStub) Cancel(_ context.Context, _ entity.Session, _ string) error {
	return b.err
}

func (b bookingStub) ConfirmCheckout(_ context.Context, _ entity.Session, _ string, _ string) (entity.BookingStatus, error) {
	return entity.BookingStatus{State: entity.BookingStateTicketed}, b.err
}

func (b bookingStub) EventStatus(_ context.Context, _ entity.Session, event entity.Event, flags entity.ReturnFlags) (entity.BookingStatus, error) {
	if event.ID == "" {
		return entity.BookingStatus{}, errors.New("event was not loaded")
	}
	if flags.Canceled {
		return entity.BookingStatus{State: entity.BookingStateCancelled}, nil
	}
	return entity.BookingStatus{State: entity.BookingStateNoTicket}, nil
}

type usersRepositoryStub struct {
	lock  sync.Mutex
	users map[string]entity.User
	err   error
}

func (r *usersRepositoryStub) Create(_ context.Context, user entity.User) (entity.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.err != nil {
		return entity.User{}, r.err
	}
	if r.users == nil {
		r.users = make(map[string]entity.User)
	}
	if existing, ok := r.users[user.ExternalID]; ok {
		return existing, nil
	}
	user.ID = uuid.NewString()
	user.ApplyNameDefaults()
	r.users[user.ExternalID] = user
	return user, nil
}

func (r *usersRepositoryStub) Update(_ context.Context, user entity.User) (entity.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.err != nil {
		return entity.User{}, r.err
	}
	existing := r.users[user.ExternalID]
	user.ID = existing.ID
	r.users[user.ExternalID] = user
	return user, nil
}

func (r *usersRepositoryStub) Delete(_ context.Context, externalID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.err != nil {
		return r.err
	}
	delete(r.users, externalID)
	return nil
}

func (r *usersRepositoryStub) get(externalID string) (entity.User, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	user, ok := r.users[externalID]
	return user, ok
}

type commandBusStub struct {
	lock sync.Mutex
	sent []any
	err  error
}

func (b *commandBusStub) Send(_ context.Context, cmd any) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, cmd)
	return nil
}

func (b *commandBusStub) sentCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.sent)
}

type deduplicatorStub struct {
	lock    sync.Mutex
	claimed map[string]bool
}

func (d *deduplicatorStub) Claim(_ context.Context, provider, eventID string) (bool, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.claimed == nil {
		d.claimed = make(map[string]bool)
	}
	key := provider + ":" + eventID
	if d.claimed[key] {
		return false, nil
	}
	d.claimed[key] = true
	return true, nil
}

func (d *deduplicatorStub) Release(_ context.Context, provider, eventID string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	delete(d.claimed, provider+":"+eventID)
	return nil
}

type fixture struct {
	handler    http.Handler
	events     *eventsRepositoryStub
	users      *usersRepositoryStub
	clerk      *gateway.ClerkMock
	commandBus *commandBusStub
}

func newFixture(t *testing.T, booking bookingStub) fixture {
	t.Helper()

	events := &eventsRepositoryStub{}
	users := &usersRepositoryStub{}
	clerk := &gateway.ClerkMock{}
	commandBus := &commandBusStub{}

	stripe := gateway.NewStripeClient(
		gateway.StripeConfig{WebhookSecret: testPaymentsSecret},
		gateway.NewStripeBackends(http.DefaultClient),
	)

	server, err := ticketsHttp.NewServer(
		ticketsHttp.Config{
			SessionSecret:         testSessionSecret,
			IdentityWebhookSecret: testIdentitySecret,
		},
		events,
		ticketsRepositoryStub{},
		users,
		booking,
		clerk,
		stripe,
		commandBus,
		&deduplicatorStub{},
	)
	require.NoError(t, err)

	return fixture{
		handler:    server.Handler(),
		events:     events,
		users:      users,
		clerk:      clerk,
		commandBus: commandBus,
	}
}

func (f fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()

	token, err := ticketsHttp.SignSessionToken([]byte(testSessionSecret), userID, time.Hour)
	require.NoError(t, err)

	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, bookingStub{})

	body := `{"title": "Meetup", "date": "2030-01-01"}`

	rec := f.do(t, http.MethodPost, "/events", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/events", body, map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	otherSecretToken, err := ticketsHttp.SignSessionToken([]byte("other"), "user-1", time.Hour)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/events", body, map[string]string{"Authorization": "Bearer " + otherSecretToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expiredToken, err := ticketsHttp.SignSessionToken([]byte(testSessionSecret), "user-1", -time.Minute)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/events", body, map[string]string{"Authorization": "Bearer " + expiredToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/events", body, bearer(t, "user-1"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id"`)

	// listing is public
	rec = f.do(t, http.MethodGet, "/events", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvents_error_mapping(t *testing.T) {
	f := newFixture(t, bookingStub{})

	rec := f.do(t, http.MethodPost, "/events", `{"title": "", "date": "2030-01-01"}`, bearer(t, "owner"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/events", `{"title": "Meetup", "date": "2030-01-01"}`, bearer(t, "owner"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var eventID string
	for id := range f.events.events {
		eventID = id
	}

	rec = f.do(t, http.MethodPatch, "/events/"+eventID, `{"title": "Hijacked"}`, bearer(t, "someone-else"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, "/events/"+eventID, `not json`, bearer(t, "owner"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/events/"+eventID, `{"title": "Renamed"}`, bearer(t, "owner"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Renamed")

	getCalls := f.events.getCalls
	rec = f.do(t, http.MethodGet, "/events/"+eventID+"?canceled=true", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"cancelled"`)
	assert.Equal(t, getCalls+1, f.events.getCalls, "the event is loaded once per request")

	rec = f.do(t, http.MethodGet, "/events/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/events?category=parties", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.events.err = fmt.Errorf("could not delete event: %w: %w", entity.ErrStorage, errors.New("connection reset"))
	rec = f.do(t, http.MethodDelete, "/events/"+eventID, "", bearer(t, "owner"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.events.err = nil
	rec = f.do(t, http.MethodDelete, "/events/"+eventID, "", bearer(t, "owner"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPostEventTickets(t *testing.T) {
	testCases := []struct {
		Name           string
		Booking        bookingStub
		ExpectedStatus int
		ExpectedBody   string
	}{
		{
			Name: "free",
			Booking: bookingStub{result: entity.BookingResult{
				State:  entity.BookingStateTicketed,
				Ticket: &entity.Ticket{TicketNumber: "TCKT-123456", Quantity: 1},
			}},
			ExpectedStatus: http.StatusCreated,
			ExpectedBody:   "TCKT-123456",
		},
		{
			Name: "paid",
			Booking: bookingStub{result: entity.BookingResult{
				State:       entity.BookingStateAwaitingPayment,
				CheckoutURL: "https://checkout.stripe.com/c/pay/cs_1",
			}},
			ExpectedStatus: http.StatusAccepted,
			ExpectedBody:   "https://checkout.stripe.com/c/pay/cs_1",
		},
		{
			Name:           "already_booked",
			Booking:        bookingStub{err: fmt.Errorf("booking: %w", entity.ErrAlreadyBooked)},
			ExpectedStatus: http.StatusConflict,
		},
		{
			Name:           "payment_processor_down",
			Booking:        bookingStub{err: fmt.Errorf("checkout: %w", entity.ErrPayment)},
			ExpectedStatus: http.StatusBadGateway,
		},
		{
			Name:           "unexpected",
			Booking:        bookingStub{err: errors.New("boom")},
			ExpectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			f := newFixture(t, tc.Booking)

			rec := f.do(t, http.MethodPost, "/events/"+uuid.NewString()+"/tickets", `{"quantity": 1}`, bearer(t, "user-1"))
			assert.Equal(t, tc.ExpectedStatus, rec.Code)
			if tc.ExpectedBody != "" {
				assert.Contains(t, rec.Body.String(), tc.ExpectedBody)
			}
		})
	}
}

func TestTicketRoutes_require_session(t *testing.T) {
	f := newFixture(t, bookingStub{})
	eventID := uuid.NewString()

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/events/" + eventID + "/tickets"},
		{http.MethodDelete, "/events/" + eventID + "/tickets"},
		{http.MethodPost, "/events/" + eventID + "/checkout/confirm"},
		{http.MethodGet, "/me/tickets"},
	} {
		rec := f.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}

	rec := f.do(t, http.MethodDelete, "/events/"+eventID+"/tickets", "", bearer(t, "user-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/me/tickets", "", bearer(t, "user-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
