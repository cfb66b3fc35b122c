package event

import (
	"context"
)

type AttendeesRepository interface {
	AddAttendee(ctx context.Context, eventID, userID string) error
	RemoveAttendee(ctx context.Context, eventID, userID string) error
}

type Notifier interface {
	Notify(ctx context.Context, userID string, message map[string]any) error
}

type Handler struct {
	attendees AttendeesRepository
	notifier  Notifier
}

func NewHandler(attendees AttendeesRepository, notifier Notifier) Handler {
	if attendees == nil {
		panic("missing attendees repository")
	}
	if notifier == nil {
		panic("missing notifier")
	}

	return Handler{
		attendees: attendees,
		notifier:  notifier,
	}
}
