package entity

type BookingState string

const (
	BookingStateNoTicket        BookingState = "no_ticket"
	BookingStateAwaitingPayment BookingState = "awaiting_payment"
	BookingStateTicketed        BookingState = "ticketed"
	BookingStateCancelled       BookingState = "cancelled"
)

// Session carries the identity of the caller explicitly through the booking workflow.
type Session struct {
	UserID string
}

func (s Session) Authenticated() bool {
	return s.UserID != ""
}

type CheckoutSession struct {
	ID       string
	URL      string
	EventID  string
	UserID   string
	Quantity int
	Paid     bool
}

type BookingResult struct {
	State       BookingState `json:"state"`
	Ticket      *Ticket      `json:"ticket,omitempty"`
	CheckoutURL string       `json:"checkout_url,omitempty"`
}

// ReturnFlags are the query flags appended by the payment processor to the return URLs.
type ReturnFlags struct {
	Success  bool
	Canceled bool
}

type BookingStatus struct {
	State     BookingState `json:"state"`
	HasTicket bool         `json:"has_ticket"`
	Quantity  int          `json:"quantity"`
	IsCreator bool         `json:"is_creator"`
	Ticket    *Ticket      `json:"ticket,omitempty"`
}
