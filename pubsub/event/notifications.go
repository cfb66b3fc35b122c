package event

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"ticketing/entity"
)

const (
	NotificationTicketGranted   = "ticket_granted"
	NotificationTicketCancelled = "ticket_cancelled"
	NotificationCheckoutStarted = "checkout_started"
)

func (h Handler) NotifyTicketGrantedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"NotifyTicketGrantedHandler",
		func(ctx context.Context, event *entity.TicketGranted) error {
			return h.notifier.Notify(ctx, event.UserID, map[string]any{
				"type":          NotificationTicketGranted,
				"event_id":      event.EventID,
				"ticket_id":     event.TicketID,
				"ticket_number": event.TicketNumber,
				"quantity":      event.Quantity,
			})
		},
	)
}

func (h Handler) NotifyTicketCancelledHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"NotifyTicketCancelledHandler",
		func(ctx context.Context, event *entity.TicketCancelled) error {
			return h.notifier.Notify(ctx, event.UserID, map[string]any{
				"type":      NotificationTicketCancelled,
				"event_id":  event.EventID,
				"ticket_id": event.TicketID,
			})
		},
	)
}

func (h Handler) NotifyCheckoutStartedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"NotifyCheckoutStartedHandler",
		func(ctx context.Context, event *entity.CheckoutSessionCreated) error {
			return h.notifier.Notify(ctx, event.UserID, map[string]any{
				"type":                NotificationCheckoutStarted,
				"event_id":            event.EventID,
				"checkout_session_id": event.CheckoutSessionID,
				"quantity":            event.Quantity,
			})
		},
	)
}
