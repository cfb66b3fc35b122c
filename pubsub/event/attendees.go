package event

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"ticketing/entity"
	"ticketing/metrics"
)

func (h Handler) AddAttendeeHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"AddAttendeeHandler",
		func(ctx context.Context, event *entity.TicketGranted) error {
			log.FromContext(ctx).WithField("event_id", event.EventID).Info("Adding attendee")

			if err := h.attendees.AddAttendee(ctx, event.EventID, event.UserID); err != nil {
				return fmt.Errorf("could not add attendee: %w", err)
			}

			metrics.TicketsGranted.WithLabelValues(string(event.Source)).Inc()
			return nil
		},
	)
}

func (h Handler) RemoveAttendeeHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"RemoveAttendeeHandler",
		func(ctx context.Context, event *entity.TicketCancelled) error {
			log.FromContext(ctx).WithField("event_id", event.EventID).Info("Removing attendee")

			if err := h.attendees.RemoveAttendee(ctx, event.EventID, event.UserID); err != nil {
				return fmt.Errorf("could not remove attendee: %w", err)
			}

			metrics.TicketsCancelled.Inc()
			return nil
		},
	)
}
