package gateway

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	pubnub "github.com/pubnub/go/v7"
)

const notifierUserID = "svc-tickets"

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

// NewPubNubNotifier returns a notifier that drops notifications when publishKey is empty.
func NewPubNubNotifier(publishKey, subscribeKey string) PubNubNotifier {
	if publishKey == "" {
		return PubNubNotifier{}
	}

	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(notifierUserID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey

	return PubNubNotifier{pn: pubnub.NewPubNub(cfg)}
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

// Notify pushes message to the realtime channel of the user.
func (n PubNubNotifier) Notify(ctx context.Context, userID string, message map[string]any) error {
	if n.pn == nil {
		log.FromContext(ctx).WithField("user_id", userID).Debug("Realtime notifications disabled, skipping")
		return nil
	}

	_, status, err := n.pn.Publish().
		Channel(UserChannel(userID)).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("could not publish notification to user %s (status %d): %w", userID, status.StatusCode, err)
	}

	return nil
}
