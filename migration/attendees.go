package migrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"ticketing/entity"
)

type DataLake interface {
	GetEvents(ctx context.Context) ([]entity.DataLakeEvent, error)
}

type AttendeesProjection interface {
	ResetAttendees(ctx context.Context) error
	AddAttendee(ctx context.Context, eventID, userID string) error
	RemoveAttendee(ctx context.Context, eventID, userID string) error
}

// RebuildAttendees clears every attendee list and replays ticket events from the data lake in publish order.
func RebuildAttendees(ctx context.Context, dl DataLake, attendees AttendeesProjection) error {
	logger := log.FromContext(ctx)
	logger.Info("Rebuilding attendees")

	events, err := dl.GetEvents(ctx)
	if err != nil {
		return fmt.Errorf("could not get events from data lake: %w", err)
	}

	logger.WithField("events_count", len(events)).Info("Has events to replay")

	if err := attendees.ResetAttendees(ctx); err != nil {
		return fmt.Errorf("could not reset attendees: %w", err)
	}

	start := time.Now()
	for _, event := range events {
		logger.WithFields(logrus.Fields{
			"event_name": event.Name,
			"event_id":   event.ID,
		}).Debug("Replaying event")

		if err := replayEvent(ctx, event, attendees); err != nil {
			return fmt.Errorf("could not replay event %s (%s): %w", event.ID, event.Name, err)
		}
	}

	logger.WithField("duration", time.Since(start)).Info("Attendees rebuilt")

	return nil
}

func replayEvent(ctx context.Context, event entity.DataLakeEvent, attendees AttendeesProjection) error {
	switch event.Name {
	case "TicketGranted":
		granted, err := unmarshalDataLakeEvent[entity.TicketGranted](event)
		if err != nil {
			return err
		}

		return attendees.AddAttendee(ctx, granted.EventID, granted.UserID)
	case "TicketCancelled":
		cancelled, err := unmarshalDataLakeEvent[entity.TicketCancelled](event)
		if err != nil {
			return err
		}

		return attendees.RemoveAttendee(ctx, cancelled.EventID, cancelled.UserID)
	default:
		// attendees do not depend on other events
		return nil
	}
}

func unmarshalDataLakeEvent[T any](event entity.DataLakeEvent) (*T, error) {
	eventInstance := new(T)

	err := json.Unmarshal(event.Payload, eventInstance)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal event %s: %w", event.Name, err)
	}

	return eventInstance, nil
}
