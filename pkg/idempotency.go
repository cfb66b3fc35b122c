package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultWebhookDedupTTL = 72 * time.Hour

// WebhookDeduplicator remembers provider event ids so that redelivered webhooks are acknowledged without side effects.
type WebhookDeduplicator struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewWebhookDeduplicator(rdb redis.Cmdable, ttl time.Duration) WebhookDeduplicator {
	if rdb == nil {
		panic("missing redis client")
	}
	if ttl <= 0 {
		ttl = DefaultWebhookDedupTTL
	}

	return WebhookDeduplicator{rdb: rdb, ttl: ttl}
}

// Claim returns false if the event was already claimed.
func (d WebhookDeduplicator) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	claimed, err := d.rdb.SetNX(ctx, webhookKey(provider, eventID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("could not claim webhook %s/%s: %w", provider, eventID, err)
	}

	return claimed, nil
}

// Release forgets a claim so that the provider's retry is processed again.
func (d WebhookDeduplicator) Release(ctx context.Context, provider, eventID string) error {
	if err := d.rdb.Del(ctx, webhookKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("could not release webhook %s/%s: %w", provider, eventID, err)
	}

	return nil
}

func webhookKey(provider, eventID string) string {
	return "webhooks:" + provider + ":" + eventID
}
