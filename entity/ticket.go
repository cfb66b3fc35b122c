package entity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

type TicketSource string

const (
	TicketSourceFree TicketSource = "free"
	TicketSourcePaid TicketSource = "paid"
)

const TicketNumberPrefix = "TCKT-"

type Ticket struct {
	ID                string       `json:"id" db:"id"`
	EventID           string       `json:"event_id" db:"event_id"`
	UserID            string       `json:"user_id" db:"user_id"`
	TicketNumber      string       `json:"ticket_number" db:"ticket_number"`
	Quantity          int          `json:"quantity" db:"quantity"`
	Source            TicketSource `json:"source" db:"source"`
	CheckoutSessionID *string      `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// UserTicket is a ticket joined with the fields of its event needed for listing.
type UserTicket struct {
	ID           string    `json:"id" db:"id"`
	EventID      string    `json:"event_id" db:"event_id"`
	TicketNumber string    `json:"ticket_number" db:"ticket_number"`
	Quantity     int       `json:"quantity" db:"quantity"`
	EventTitle   string    `json:"event_title" db:"event_title"`
	EventDate    string    `json:"event_date" db:"event_date"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

var ticketNumberMin = big.NewInt(100000)
var ticketNumberSpan = big.NewInt(900000)

// NewTicketNumber returns a code in the TCKT-100000..TCKT-999999 range.
func NewTicketNumber() (string, error) {
	n, err := rand.Int(rand.Reader, ticketNumberSpan)
	if err != nil {
		return "", fmt.Errorf("could not generate ticket number: %w", err)
	}
	return TicketNumberPrefix + n.Add(n, ticketNumberMin).String(), nil
}
