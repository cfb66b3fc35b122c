package command

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/sirupsen/logrus"

	"ticketing/entity"
)

func (h Handler) GrantTicketHandler() cqrs.CommandHandler {
	return cqrs.NewCommandHandler(
		"GrantTicketHandler",
		func(ctx context.Context, cmd *entity.GrantTicket) error {
			logger := log.FromContext(ctx).WithFields(logrus.Fields{
				"event_id":            cmd.EventID,
				"user_id":             cmd.UserID,
				"checkout_session_id": cmd.CheckoutSessionID,
			})
			logger.Info("Granting ticket")

			_, err := h.grantor.GrantTicket(ctx, *cmd)
			switch {
			case err == nil:
				return nil
			// retrying cannot change the outcome of these
			case errors.Is(err, entity.ErrAlreadyBooked),
				errors.Is(err, entity.ErrNotFound),
				errors.Is(err, entity.ErrValidation):
				logger.WithError(err).Warn("Ticket not granted")
				return nil
			default:
				return err
			}
		},
	)
}
