package tickets_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbutils "ticketing/db"
	"ticketing/db/events"
	"ticketing/db/tickets"
	"ticketing/entity"
)

func TestTicketsRepository_Grant(t *testing.T) {
	ctx := context.Background()
	db := dbutils.GetDb(t)
	repo := tickets.NewPostgresRepository(db)

	event := createEvent(t, db, "Concert", "2025-03-01")
	userID := uuid.NewString()

	granted, err := repo.Grant(ctx, newTicket(event.ID, userID, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, granted.Quantity)
	assert.False(t, granted.CreatedAt.IsZero())

	stored, err := repo.Get(ctx, event.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, granted.ID, stored.ID)
	assert.Equal(t, granted.TicketNumber, stored.TicketNumber)

	exists, err := repo.ExistsFor(ctx, event.ID, userID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTicketsRepository_Grant_already_booked(t *testing.T) {
	ctx := context.Background()
	db := dbutils.GetDb(t)
	repo := tickets.NewPostgresRepository(db)

	event := createEvent(t, db, "Workshop", "2025-03-02")
	userID := uuid.NewString()

	first, err := repo.Grant(ctx, newTicket(event.ID, userID, 1))
	require.NoError(t, err)

	_, err = repo.Grant(ctx, newTicket(event.ID, userID, 2))
	assert.ErrorIs(t, err, entity.ErrAlreadyBooked)

	stored, err := repo.Get(ctx, event.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, 1, stored.Quantity, "the first grant wins")
}

func TestTicketsRepository_Grant_paid_redelivery_is_idempotent(t *testing.T) {
	ctx := context.Background()
	db := dbutils.GetDb(t)
	repo := tickets.NewPostgresRepository(db)

	event := createEvent(t, db, "Gala", "2025-03-03")
	userID := uuid.NewString()

	paid := newTicket(event.ID, userID, 2)
	paid.Source = entity.TicketSourcePaid
	paid.CheckoutSessionID = lo.ToPtr("cs_test_" + uuid.NewString())

	first, err := repo.Grant(ctx, paid)
	require.NoError(t, err)

	redelivered := paid
	redelivered.ID = uuid.NewString()
	redelivered.TicketNumber = "TCKT-999999"

	second, err := repo.Grant(ctx, redelivered)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	otherSession := paid
	otherSession.ID = uuid.NewString()
	otherSession.CheckoutSessionID = lo.ToPtr("cs_test_other")

	_, err = repo.Grant(ctx, otherSession)
	assert.ErrorIs(t, err, entity.ErrAlreadyBooked)
}

func TestTicketsRepository_Grant_unknown_event(t *testing.T) {
	repo := tickets.NewPostgresRepository(dbutils.GetDb(t))

	_, err := repo.Grant(context.Background(), newTicket(uuid.NewString(), uuid.NewString(), 1))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestTicketsRepository_Grant_concurrent_duplicates(t *testing.T) {
	ctx := context.Background()
	db := dbutils.GetDb(t)
	repo := tickets.NewPostgresRepository(db)

	event := createEvent(t, db, "Race", "2025-03-04")
	userID := uuid.NewString()

	const attempts = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
		unknown   []error
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := repo.Grant(ctx, newTicket(event.ID, userID, 1))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, entity.ErrAlreadyBooked):
				rejected++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)

	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND user_id = $2`, event.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the unique constraint allows exactly one ticket per event and user")
}

func TestTicketsRepository_Cancel(t *testing.T) {
	ctx := context.Background()
	db := dbutils.GetDb(t)
	repo := tickets.NewPostgresRepository(db)

	event := createEvent(t, db, "Meetup", "2025-03-05")
	userID := uuid.NewString()
	otherUserID := uuid.NewString()

	_, err := repo.Grant(ctx, newTicket(event.ID, userID, 1))
	require.NoError(t, err)
	_, err = repo.Grant(ctx, newTicket(event.ID, otherUserID, 1))
	require.NoError(t, err)

	require.NoError(t, repo.Cancel(ctx, event.ID, userID))

	exists, err := repo.ExistsFor(ctx, event.ID, userID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsFor(ctx, event.ID, otherUserID)
	require.NoError(t, err)
	assert.True(t, exists, "other users' tickets are untouched")

	// cancelling again is a no-op
	require.NoError(t, repo.Cancel(ctx, event.ID, userID))
	require.NoError(t, repo.Cancel(ctx, uuid.NewString(), userID))
	require.NoError(t, repo.Cancel(ctx, "not-a-uuid", userID))

	_, err = repo.Get(ctx, event.ID, userID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestTicketsRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	db := dbutils.GetDb(t)
	repo := tickets.NewPostgresRepository(db)

	userID := uuid.NewString()
	later := createEvent(t, db, "Later", "2026-09-01")
	sooner := createEvent(t, db, "Sooner", "2026-01-01")

	_, err := repo.Grant(ctx, newTicket(later.ID, userID, 2))
	require.NoError(t, err)
	_, err = repo.Grant(ctx, newTicket(sooner.ID, userID, 1))
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "Sooner", list[0].EventTitle)
	assert.Equal(t, "2026-01-01", list[0].EventDate)
	assert.Equal(t, 1, list[0].Quantity)
	assert.Equal(t, "Later", list[1].EventTitle)
	assert.Equal(t, 2, list[1].Quantity)

	empty, err := repo.ListByUser(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func createEvent(t *testing.T, db *sqlx.DB, title, date string) entity.Event {
	t.Helper()

	event, err := events.NewPostgresRepository(db).Create(
		context.Background(),
		entity.EventInput{Title: title, Date: date},
		uuid.NewString(),
	)
	require.NoError(t, err)

	return event
}

func newTicket(eventID, userID string, quantity int) entity.Ticket {
	return entity.Ticket{
		ID:           uuid.NewString(),
		EventID:      eventID,
		UserID:       userID,
		TicketNumber: "TCKT-123456",
		Quantity:     quantity,
		Source:       entity.TicketSourceFree,
	}
}
