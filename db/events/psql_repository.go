package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"ticketing/db"
	"ticketing/entity"
	"ticketing/pkg"
	"ticketing/pkg/outbox"
)

type eventRow struct {
	ID            string          `db:"id"`
	Title         string          `db:"title"`
	Description   string          `db:"description"`
	Date          string          `db:"event_date"`
	Time          string          `db:"event_time"`
	Location      string          `db:"location"`
	Organizer     string          `db:"organizer"`
	ImageURL      string          `db:"image_url"`
	Price         decimal.Decimal `db:"price"`
	AdmissionFree bool            `db:"admission_free"`
	Category      string          `db:"category"`
	CreatorID     string          `db:"creator_id"`
	Attendees     pq.StringArray  `db:"attendees"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r eventRow) toEntity() entity.Event {
	attendees := []string(r.Attendees)
	if attendees == nil {
		attendees = []string{}
	}

	return entity.Event{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Date:          r.Date,
		Time:          r.Time,
		Location:      r.Location,
		Organizer:     r.Organizer,
		ImageURL:      r.ImageURL,
		Price:         r.Price,
		AdmissionFree: r.AdmissionFree,
		Category:      entity.Category(r.Category),
		CreatorID:     r.CreatorID,
		Attendees:     attendees,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return PostgresRepository{db: db}
}

func (r PostgresRepository) Create(ctx context.Context, in entity.EventInput, ownerID string) (entity.Event, error) {
	if ownerID == "" {
		return entity.Event{}, fmt.Errorf("%w: owner is required", entity.ErrUnauthorized)
	}
	if err := in.Validate(); err != nil {
		return entity.Event{}, err
	}

	category, err := entity.ParseCategory(in.Category)
	if err != nil {
		return entity.Event{}, err
	}
	price, err := entity.NormalizePrice(in.Price)
	if err != nil {
		return entity.Event{}, err
	}

	now := time.Now().UTC()
	row := eventRow{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Date:          in.Date,
		Time:          in.Time,
		Location:      in.Location,
		Organizer:     in.Organizer,
		ImageURL:      in.ImageURL,
		Price:         price,
		AdmissionFree: in.AdmissionFree,
		Category:      string(category),
		CreatorID:     ownerID,
		Attendees:     pq.StringArray{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO events (
			id, title, description, event_date, event_time, location, organizer, image_url,
			price, admission_free, category, creator_id, attendees, created_at, updated_at
		) VALUES (
			:id, :title, :description, :event_date, :event_time, :location, :organizer, :image_url,
			:price, :admission_free, :category, :creator_id, :attendees, :created_at, :updated_at
		)
	`, row)
	if err != nil {
		return entity.Event{}, db.StorageError("create event", err)
	}

	return row.toEntity(), nil
}

// List never fails: on a storage error it logs and returns an empty list so read paths stay usable.
func (r PostgresRepository) List(ctx context.Context, filter entity.EventFilter) []entity.Event {
	query := `SELECT * FROM events`
	var args []any
	if filter.Category != "" {
		query += ` WHERE category = $1`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY event_date ASC, created_at ASC`

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		log.FromContext(ctx).WithError(err).Error("Could not list events")
		return []entity.Event{}
	}

	events := make([]entity.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEntity())
	}

	return events
}

func (r PostgresRepository) Get(ctx context.Context, eventID string) (entity.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}

	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM events WHERE id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Event{}, db.StorageError("get event", err)
	}

	return row.toEntity(), nil
}

// Update applies the allow-listed fields after verifying ownership, both within one transaction.
func (r PostgresRepository) Update(
	ctx context.Context,
	eventID string,
	fields map[string]any,
	requesterID string,
) (entity.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return entity.Event{}, fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}

	var updated eventRow
	err := db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := r.lockForOwner(ctx, tx, eventID, requesterID); err != nil {
			return err
		}

		// the patch is only judged once the requester is known to own the event
		patch, err := entity.ParseEventPatch(fields)
		if err != nil {
			return err
		}

		query, args := buildUpdateQuery(eventID, patch, time.Now().UTC())

		err = tx.GetContext(ctx, &updated, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return entity.Event{}, db.StorageError("update event", err)
	}

	return updated.toEntity(), nil
}

// Delete removes the event and every ticket referencing it in a single transaction.
func (r PostgresRepository) Delete(ctx context.Context, eventID string, requesterID string) error {
	if _, err := uuid.Parse(eventID); err != nil {
		return fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}

	err := db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := r.lockForOwner(ctx, tx, eventID, requesterID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE event_id = $1`, eventID)
		if err != nil {
			return fmt.Errorf("could not delete tickets of event %s: %w", eventID, err)
		}
		ticketsRemoved, err := res.RowsAffected()
		if err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, eventID)
		if err != nil {
			return fmt.Errorf("could not delete event %s: %w", eventID, err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
		}

		outboxPublisher, err := outbox.NewPublisherForDb(ctx, tx)
		if err != nil {
			return err
		}

		eventBus, err := pkg.NewEventBus(outboxPublisher)
		if err != nil {
			return err
		}

		return eventBus.Publish(ctx, entity.EventDeleted{
			Header:         entity.NewEventHeader(),
			EventID:        eventID,
			CreatorID:      requesterID,
			TicketsRemoved: int(ticketsRemoved),
		})
	})

	return db.StorageError("delete event", err)
}

// AddAttendee and RemoveAttendee follow the tickets table, so TicketGranted and TicketCancelled
// may be applied in any order and still converge.
func (r PostgresRepository) AddAttendee(ctx context.Context, eventID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET attendees = array_append(attendees, $2)
		WHERE id = $1
			AND NOT ($2 = ANY(attendees))
			AND EXISTS (SELECT 1 FROM tickets WHERE tickets.event_id = events.id AND tickets.user_id = $2)
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("could not add attendee %s to event %s: %w", userID, eventID, err)
	}

	return nil
}

func (r PostgresRepository) RemoveAttendee(ctx context.Context, eventID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET attendees = array_remove(attendees, $2)
		WHERE id = $1
			AND NOT EXISTS (SELECT 1 FROM tickets WHERE tickets.event_id = events.id AND tickets.user_id = $2)
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("could not remove attendee %s from event %s: %w", userID, eventID, err)
	}

	return nil
}

func (r PostgresRepository) ResetAttendees(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE events SET attendees = '{}'`)
	if err != nil {
		return fmt.Errorf("could not reset attendees: %w", err)
	}

	return nil
}

func (r PostgresRepository) lockForOwner(ctx context.Context, tx *sqlx.Tx, eventID, requesterID string) error {
	var creatorID string
	err := tx.GetContext(ctx, &creatorID, `SELECT creator_id FROM events WHERE id = $1 FOR UPDATE`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("event %s: %w", eventID, entity.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("could not lock event %s: %w", eventID, err)
	}

	if requesterID == "" || creatorID != requesterID {
		return fmt.Errorf("user %q is not the creator of event %s: %w", requesterID, eventID, entity.ErrUnauthorized)
	}

	return nil
}

func buildUpdateQuery(eventID string, patch entity.EventPatch, now time.Time) (string, []any) {
	columns := map[string]any{}
	if patch.Title != nil {
		columns["title"] = *patch.Title
	}
	if patch.Description != nil {
		columns["description"] = *patch.Description
	}
	if patch.Date != nil {
		columns["event_date"] = *patch.Date
	}
	if patch.Time != nil {
		columns["event_time"] = *patch.Time
	}
	if patch.Location != nil {
		columns["location"] = *patch.Location
	}
	if patch.Category != nil {
		columns["category"] = string(*patch.Category)
	}
	if patch.Price != nil {
		columns["price"] = *patch.Price
	}
	if patch.ImageURL != nil {
		columns["image_url"] = *patch.ImageURL
	}
	if patch.AdmissionFree != nil {
		columns["admission_free"] = *patch.AdmissionFree
	}

	names := lo.Keys(columns)
	sort.Strings(names)

	args := []any{eventID, now}
	set := []string{"updated_at = $2"}
	for _, name := range names {
		args = append(args, columns[name])
		set = append(set, fmt.Sprintf("%s = $%d", name, len(args)))
	}

	return fmt.Sprintf(`UPDATE events SET %s WHERE id = $1 RETURNING *`, strings.Join(set, ", ")), args
}
