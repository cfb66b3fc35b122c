package gateway

import (
	"context"
	"sync"
)

type ClerkMock struct {
	mock sync.Mutex

	LocalUserIDs map[string]string
	Err          error
}

func (c *ClerkMock) SetLocalUserID(ctx context.Context, externalID string, localID string) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Err != nil {
		return c.Err
	}
	if c.LocalUserIDs == nil {
		c.LocalUserIDs = make(map[string]string)
	}

	c.LocalUserIDs[externalID] = localID

	return nil
}

func (c *ClerkMock) LocalUserID(externalID string) (string, bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	id, ok := c.LocalUserIDs[externalID]
	return id, ok
}
