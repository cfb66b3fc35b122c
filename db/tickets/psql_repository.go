package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ticketing/db"
	"ticketing/entity"
	"ticketing/pkg"
	"ticketing/pkg/outbox"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return &PostgresRepository{db: db}
}

// Grant stores the ticket and publishes TicketGranted in the same transaction.
// The (event_id, user_id) unique constraint is the only duplicate check: a conflicting insert yields ErrAlreadyBooked,
// unless it is a redelivery of the same paid checkout session, in which case the existing ticket is returned.
func (r *PostgresRepository) Grant(ctx context.Context, ticket entity.Ticket) (entity.Ticket, error) {
	if _, err := uuid.Parse(ticket.EventID); err != nil {
		return entity.Ticket{}, fmt.Errorf("event %s: %w", ticket.EventID, entity.ErrNotFound)
	}

	var (
		granted  entity.Ticket
		existing *entity.Ticket
	)

	err := db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		inserted, err := insertTicket(ctx, tx, ticket, &granted)
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("event %s: %w", ticket.EventID, entity.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if !inserted {
			found, err := r.get(ctx, tx, ticket.EventID, ticket.UserID)
			if err != nil {
				return err
			}
			existing = &found
			return nil
		}

		outboxPublisher, err := outbox.NewPublisherForDb(ctx, tx)
		if err != nil {
			return err
		}

		eventBus, err := pkg.NewEventBus(outboxPublisher)
		if err != nil {
			return err
		}

		return eventBus.Publish(ctx, entity.TicketGranted{
			Header:       entity.NewEventHeaderWithIdempotencyKey(granted.ID),
			TicketID:     granted.ID,
			EventID:      granted.EventID,
			UserID:       granted.UserID,
			TicketNumber: granted.TicketNumber,
			Quantity:     granted.Quantity,
			Source:       granted.Source,
		})
	})
	if err != nil {
		return entity.Ticket{}, db.StorageError("grant ticket", err)
	}

	if existing != nil {
		if sameCheckoutSession(*existing, ticket) {
			return *existing, nil
		}
		return *existing, fmt.Errorf("user %s already holds ticket %s for event %s: %w",
			ticket.UserID, existing.TicketNumber, ticket.EventID, entity.ErrAlreadyBooked)
	}

	return granted, nil
}

// Cancel deletes the user's ticket for the event. Deleting nothing is not an error.
func (r *PostgresRepository) Cancel(ctx context.Context, eventID, userID string) error {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil
	}

	err := db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		var ticketIDs []string
		err := tx.SelectContext(ctx, &ticketIDs, `
			DELETE FROM tickets
			WHERE event_id = $1 AND user_id = $2
			RETURNING id
		`, eventID, userID)
		if err != nil {
			return fmt.Errorf("could not delete tickets: %w", err)
		}
		if len(ticketIDs) == 0 {
			return nil
		}

		outboxPublisher, err := outbox.NewPublisherForDb(ctx, tx)
		if err != nil {
			return err
		}

		eventBus, err := pkg.NewEventBus(outboxPublisher)
		if err != nil {
			return err
		}

		for _, ticketID := range ticketIDs {
			err := eventBus.Publish(ctx, entity.TicketCancelled{
				Header:   entity.NewEventHeaderWithIdempotencyKey(ticketID),
				TicketID: ticketID,
				EventID:  eventID,
				UserID:   userID,
			})
			if err != nil {
				return fmt.Errorf("could not publish TicketCancelled: %w", err)
			}
		}

		return nil
	})

	return db.StorageError("cancel ticket", err)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]entity.UserTicket, error) {
	tickets := []entity.UserTicket{}
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT
			t.id,
			t.event_id,
			t.ticket_number,
			COALESCE(t.quantity, 1) AS quantity,
			e.title AS event_title,
			e.event_date,
			t.created_at
		FROM tickets t
		JOIN events e ON e.id = t.event_id
		WHERE t.user_id = $1
		ORDER BY e.event_date ASC, t.created_at ASC
	`, userID)
	if err != nil {
		return nil, db.StorageError("list tickets", err)
	}

	return tickets, nil
}

func (r *PostgresRepository) ExistsFor(ctx context.Context, eventID, userID string) (bool, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return false, nil
	}

	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM tickets WHERE event_id = $1 AND user_id = $2)
	`, eventID, userID)
	if err != nil {
		return false, db.StorageError("check ticket", err)
	}

	return exists, nil
}

func (r *PostgresRepository) Get(ctx context.Context, eventID, userID string) (entity.Ticket, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return entity.Ticket{}, fmt.Errorf("ticket for event %s: %w", eventID, entity.ErrNotFound)
	}

	ticket, err := r.get(ctx, r.db, eventID, userID)
	if err != nil {
		return entity.Ticket{}, db.StorageError("get ticket", err)
	}

	return ticket, nil
}

func (r *PostgresRepository) get(ctx context.Context, q sqlx.QueryerContext, eventID, userID string) (entity.Ticket, error) {
	var ticket entity.Ticket
	err := sqlx.GetContext(ctx, q, &ticket, `
		SELECT * FROM tickets WHERE event_id = $1 AND user_id = $2
	`, eventID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, fmt.Errorf("ticket for event %s and user %s: %w", eventID, userID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not get ticket: %w", err)
	}

	return ticket, nil
}

// insertTicket reports false when the (event_id, user_id) pair is already taken.
func insertTicket(ctx context.Context, tx *sqlx.Tx, ticket entity.Ticket, dest *entity.Ticket) (bool, error) {
	rows, err := sqlx.NamedQueryContext(ctx, tx, `
		INSERT INTO tickets (id, event_id, user_id, ticket_number, quantity, source, checkout_session_id, created_at)
		VALUES (:id, :event_id, :user_id, :ticket_number, :quantity, :source, :checkout_session_id, NOW())
		ON CONFLICT (event_id, user_id) DO NOTHING
		RETURNING *
	`, ticket)
	if err != nil {
		return false, fmt.Errorf("could not insert ticket: %w", err)
	}
	defer rows.Close()

	inserted := false
	for rows.Next() {
		if err := rows.StructScan(dest); err != nil {
			return false, fmt.Errorf("could not scan ticket: %w", err)
		}
		inserted = true
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("could not insert ticket: %w", err)
	}

	return inserted, nil
}

func sameCheckoutSession(existing, requested entity.Ticket) bool {
	return existing.CheckoutSessionID != nil &&
		requested.CheckoutSessionID != nil &&
		*existing.CheckoutSessionID == *requested.CheckoutSessionID
}
