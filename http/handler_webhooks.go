package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"ticketing/entity"
	"ticketing/metrics"
)

const (
	providerPayments = "stripe"
	providerIdentity = "clerk"

	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

var svixHeaders = []string{"svix-id", "svix-timestamp", "svix-signature"}

type identityWebhookPayload struct {
	Type string              `json:"type"`
	Data identityWebhookUser `json:"data"`
}

type identityWebhookUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ImageURL       string `json:"image_url"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

func (u identityWebhookUser) toEntity() entity.User {
	user := entity.User{
		ExternalID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		PhotoURL:   u.ImageURL,
	}
	if len(u.EmailAddresses) > 0 {
		user.Email = u.EmailAddresses[0].EmailAddress
	}

	return user
}

func webhookOutcome(provider, outcome string) {
	metrics.WebhooksReceived.WithLabelValues(provider, outcome).Inc()
}

// PostPaymentsWebhook turns completed checkout sessions into GrantTicket commands.
// Non-2xx responses make the payment processor redeliver.
func (s Server) PostPaymentsWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read body").SetInternal(err)
	}

	event, err := s.payments.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		webhookOutcome(providerPayments, outcomeRejected)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature").SetInternal(err)
	}

	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"webhook_event_id":   event.ID,
		"webhook_event_type": event.Type,
	})

	claimed, err := s.deduplicator.Claim(ctx, providerPayments, event.ID)
	if err != nil {
		webhookOutcome(providerPayments, outcomeFailed)
		return err
	}
	if !claimed {
		logger.Info("Payment webhook already processed")
		webhookOutcome(providerPayments, outcomeDuplicate)
		return c.NoContent(http.StatusOK)
	}

	if !event.IsCheckoutCompleted() {
		webhookOutcome(providerPayments, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}

	session, err := event.CheckoutSession()
	if err != nil {
		// a redelivery would carry the same metadata
		logger.WithError(err).Error("Malformed checkout session in payment webhook")
		webhookOutcome(providerPayments, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}
	if !session.Paid {
		logger.WithField("checkout_session_id", session.ID).Info("Checkout completed without payment yet")
		webhookOutcome(providerPayments, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}

	err = s.commandBus.Send(ctx, &entity.GrantTicket{
		Header:            entity.NewEventHeaderWithIdempotencyKey(session.ID),
		EventID:           session.EventID,
		UserID:            session.UserID,
		Quantity:          session.Quantity,
		Source:            entity.TicketSourcePaid,
		CheckoutSessionID: session.ID,
	})
	if err != nil {
		if releaseErr := s.deduplicator.Release(ctx, providerPayments, event.ID); releaseErr != nil {
			logger.WithError(releaseErr).Error("Could not release payment webhook claim")
		}
		webhookOutcome(providerPayments, outcomeFailed)
		return err
	}

	webhookOutcome(providerPayments, outcomeAccepted)
	return c.NoContent(http.StatusOK)
}

// PostIdentityWebhook mirrors identity provider accounts into the users table.
func (s Server) PostIdentityWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	headers := c.Request().Header

	for _, header := range svixHeaders {
		if headers.Get(header) == "" {
			webhookOutcome(providerIdentity, outcomeRejected)
			return c.String(http.StatusBadRequest, "Missing headers")
		}
	}

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read body").SetInternal(err)
	}

	if err := s.identityWebhook.Verify(payload, headers); err != nil {
		webhookOutcome(providerIdentity, outcomeRejected)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature").SetInternal(err)
	}

	var webhook identityWebhookPayload
	if err := json.Unmarshal(payload, &webhook); err != nil {
		webhookOutcome(providerIdentity, outcomeRejected)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload").SetInternal(err)
	}

	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"webhook_id":   headers.Get("svix-id"),
		"webhook_type": webhook.Type,
		"external_id":  webhook.Data.ID,
	})

	switch webhook.Type {
	case "user.created":
		user, err := s.usersRepo.Create(ctx, webhook.Data.toEntity())
		if err != nil {
			webhookOutcome(providerIdentity, outcomeFailed)
			return err
		}

		if err := s.identity.SetLocalUserID(ctx, user.ExternalID, user.ID); err != nil {
			logger.WithError(err).Error("Could not store local user id in identity provider")
		}
	case "user.updated":
		if _, err := s.usersRepo.Update(ctx, webhook.Data.toEntity()); err != nil {
			webhookOutcome(providerIdentity, outcomeFailed)
			return err
		}
	case "user.deleted":
		if err := s.usersRepo.Delete(ctx, webhook.Data.ID); err != nil {
			webhookOutcome(providerIdentity, outcomeFailed)
			return err
		}
	default:
		logger.Debug("Ignoring identity webhook")
		webhookOutcome(providerIdentity, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}

	logger.Info("Identity webhook processed")
	webhookOutcome(providerIdentity, outcomeAccepted)
	return c.NoContent(http.StatusOK)
}
