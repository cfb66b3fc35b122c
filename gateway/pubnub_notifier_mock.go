package gateway

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

type Notification struct {
	UserID  string
	Message map[string]any
}

type NotifierMock struct {
	mock sync.Mutex

	Notifications []Notification
}

func (n *NotifierMock) Notify(ctx context.Context, userID string, message map[string]any) error {
	n.mock.Lock()
	defer n.mock.Unlock()

	n.Notifications = append(n.Notifications, Notification{UserID: userID, Message: message})

	return nil
}

func (n *NotifierMock) For(userID string) []Notification {
	n.mock.Lock()
	defer n.mock.Unlock()

	return lo.Filter(n.Notifications, func(notification Notification, _ int) bool {
		return notification.UserID == userID
	})
}
