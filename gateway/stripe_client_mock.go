package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ticketing/entity"
)

type StripeMock struct {
	mock sync.Mutex

	Sessions map[string]entity.CheckoutSession
	// Err is returned by every call when set
	Err error
}

func (c *StripeMock) CreateCheckoutSession(
	ctx context.Context,
	event entity.Event,
	quantity int,
	userID string,
) (entity.CheckoutSession, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Err != nil {
		return entity.CheckoutSession{}, fmt.Errorf("could not create checkout session: %w: %w", entity.ErrPayment, c.Err)
	}
	if c.Sessions == nil {
		c.Sessions = make(map[string]entity.CheckoutSession)
	}

	id := "cs_test_" + uuid.NewString()
	session := entity.CheckoutSession{
		ID:       id,
		URL:      "https://checkout.stripe.com/c/pay/" + id,
		EventID:  event.ID,
		UserID:   userID,
		Quantity: quantity,
	}
	c.Sessions[id] = session

	return session, nil
}

func (c *StripeMock) GetCheckoutSession(ctx context.Context, sessionID string) (entity.CheckoutSession, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Err != nil {
		return entity.CheckoutSession{}, fmt.Errorf("could not get checkout session: %w: %w", entity.ErrPayment, c.Err)
	}

	session, ok := c.Sessions[sessionID]
	if !ok {
		return entity.CheckoutSession{}, fmt.Errorf("checkout session %s: %w", sessionID, entity.ErrNotFound)
	}

	return session, nil
}

func (c *StripeMock) MarkPaid(sessionID string) {
	c.mock.Lock()
	defer c.mock.Unlock()

	session := c.Sessions[sessionID]
	session.Paid = true
	c.Sessions[sessionID] = session
}

func (c *StripeMock) SessionsCount() int {
	c.mock.Lock()
	defer c.mock.Unlock()

	return len(c.Sessions)
}
