package entity

// GrantTicket is the only way a ticket comes into existence, for free and paid bookings alike.
type GrantTicket struct {
	Header EventHeader `json:"header"`

	EventID           string       `json:"event_id"`
	UserID            string       `json:"user_id"`
	Quantity          int          `json:"quantity"`
	Source            TicketSource `json:"source"`
	CheckoutSessionID string       `json:"checkout_session_id,omitempty"`
}
