package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"ticketing/entity"
)

const (
	metadataEventID  = "eventId"
	metadataUserID   = "userId"
	metadataQuantity = "quantity"

	EventTypeCheckoutSessionCompleted = string(stripe.EventTypeCheckoutSessionCompleted)
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PublicURL     string
	Currency      string
}

type StripeClient struct {
	api    *client.API
	config StripeConfig
}

func NewStripeClient(config StripeConfig, backends *stripe.Backends) *StripeClient {
	if backends == nil {
		panic("missing stripe backends")
	}
	if config.Currency == "" {
		config.Currency = "usd"
	}
	config.PublicURL = strings.TrimSuffix(config.PublicURL, "/")

	return &StripeClient{
		api:    client.New(config.SecretKey, backends),
		config: config,
	}
}

func NewStripeBackends(httpClient *http.Client) *stripe.Backends {
	return stripe.NewBackends(httpClient)
}

func (c *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	event entity.Event,
	quantity int,
	userID string,
) (entity.CheckoutSession, error) {
	params, err := c.checkoutSessionParams(event, quantity, userID)
	if err != nil {
		return entity.CheckoutSession{}, err
	}
	params.Context = ctx

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return entity.CheckoutSession{}, fmt.Errorf("could not create checkout session for event %s: %w: %w", event.ID, entity.ErrPayment, err)
	}

	return entity.CheckoutSession{
		ID:       session.ID,
		URL:      session.URL,
		EventID:  event.ID,
		UserID:   userID,
		Quantity: quantity,
		Paid:     session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (entity.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return entity.CheckoutSession{}, fmt.Errorf("checkout session %s: %w", sessionID, entity.ErrNotFound)
		}
		return entity.CheckoutSession{}, fmt.Errorf("could not get checkout session %s: %w: %w", sessionID, entity.ErrPayment, err)
	}

	return checkoutSessionFromStripe(session)
}

// PaymentWebhookEvent is a verified delivery from the payment processor.
type PaymentWebhookEvent struct {
	ID   string
	Type string
	raw  json.RawMessage
}

func (e PaymentWebhookEvent) IsCheckoutCompleted() bool {
	return e.Type == EventTypeCheckoutSessionCompleted
}

// CheckoutSession decodes the session carried by a checkout.session.* event.
func (e PaymentWebhookEvent) CheckoutSession() (entity.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(e.raw, &session); err != nil {
		return entity.CheckoutSession{}, fmt.Errorf("could not decode checkout session of %s: %w: %w", e.ID, entity.ErrValidation, err)
	}

	return checkoutSessionFromStripe(&session)
}

func (c *StripeClient) ParseWebhook(payload []byte, signatureHeader string) (PaymentWebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signatureHeader,
		c.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return PaymentWebhookEvent{}, fmt.Errorf("invalid payment webhook signature: %w: %w", entity.ErrValidation, err)
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	return PaymentWebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
		raw:  raw,
	}, nil
}

func (c *StripeClient) checkoutSessionParams(
	event entity.Event,
	quantity int,
	userID string,
) (*stripe.CheckoutSessionParams, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", entity.ErrValidation)
	}

	unitAmount, err := entity.ToMinorUnits(event.Price)
	if err != nil {
		return nil, err
	}

	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name:        stripe.String(event.Title),
		Description: stripe.String("Ticket for " + event.Title),
	}
	if event.ImageURL != "" {
		productData.Images = stripe.StringSlice([]string{event.ImageURL})
	}

	eventURL := fmt.Sprintf("%s/events/%s", c.config.PublicURL, event.ID)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(c.config.Currency),
					ProductData: productData,
					UnitAmount:  stripe.Int64(unitAmount),
				},
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
		SuccessURL: stripe.String(eventURL + "?success=true"),
		CancelURL:  stripe.String(eventURL + "?canceled=true"),
	}
	params.AddMetadata(metadataEventID, event.ID)
	params.AddMetadata(metadataUserID, userID)
	params.AddMetadata(metadataQuantity, strconv.Itoa(quantity))

	return params, nil
}

func checkoutSessionFromStripe(session *stripe.CheckoutSession) (entity.CheckoutSession, error) {
	eventID := session.Metadata[metadataEventID]
	userID := session.Metadata[metadataUserID]
	if eventID == "" || userID == "" {
		return entity.CheckoutSession{}, fmt.Errorf("checkout session %s has no event or user in metadata: %w", session.ID, entity.ErrValidation)
	}

	quantity, err := strconv.Atoi(session.Metadata[metadataQuantity])
	if err != nil || quantity < 1 {
		return entity.CheckoutSession{}, fmt.Errorf("checkout session %s has invalid quantity %q: %w", session.ID, session.Metadata[metadataQuantity], entity.ErrValidation)
	}

	return entity.CheckoutSession{
		ID:       session.ID,
		URL:      session.URL,
		EventID:  eventID,
		UserID:   userID,
		Quantity: quantity,
		Paid:     session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}
