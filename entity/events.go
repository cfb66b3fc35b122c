package entity

import (
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type TicketGranted struct {
	Header EventHeader `json:"header"`

	TicketID     string       `json:"ticket_id"`
	EventID      string       `json:"event_id"`
	UserID       string       `json:"user_id"`
	TicketNumber string       `json:"ticket_number"`
	Quantity     int          `json:"quantity"`
	Source       TicketSource `json:"source"`
}

func (e TicketGranted) IsInternal() bool {
	return false
}

type TicketCancelled struct {
	Header EventHeader `json:"header"`

	TicketID string `json:"ticket_id"`
	EventID  string `json:"event_id"`
	UserID   string `json:"user_id"`
}

func (e TicketCancelled) IsInternal() bool {
	return false
}

type EventDeleted struct {
	Header EventHeader `json:"header"`

	EventID        string `json:"event_id"`
	CreatorID      string `json:"creator_id"`
	TicketsRemoved int    `json:"tickets_removed"`
}

func (e EventDeleted) IsInternal() bool {
	return false
}

// CheckoutSessionCreated only feeds local consumers, it never reaches the data lake.
type CheckoutSessionCreated struct {
	Header EventHeader `json:"header"`

	CheckoutSessionID string `json:"checkout_session_id"`
	EventID           string `json:"event_id"`
	UserID            string `json:"user_id"`
	Quantity          int    `json:"quantity"`
}

func (e CheckoutSessionCreated) IsInternal() bool {
	return true
}

type DataLakeEvent struct {
	ID          string    `db:"event_id"`
	PublishedAt time.Time `db:"published_at"`
	Name        string    `db:"event_name"`
	Payload     []byte    `db:"event_payload"`
}
