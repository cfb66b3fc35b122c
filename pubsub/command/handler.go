package command

import (
	"context"

	"ticketing/entity"
)

type TicketGrantor interface {
	GrantTicket(ctx context.Context, cmd entity.GrantTicket) (entity.Ticket, error)
}

type Handler struct {
	grantor TicketGrantor
}

func NewHandler(grantor TicketGrantor) Handler {
	if grantor == nil {
		panic("missing ticket grantor")
	}

	return Handler{grantor: grantor}
}
