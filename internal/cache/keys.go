package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix       = "user:%d"
	SubscriberCountKey  = "newsletter:active_count"
	NewsletterOutboxKey = "newsletter:outbox"
)

const (
	UserTTL            = 5 * time.Minute
	SubscriberCountTTL = 5 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// Invalidate deletes the keys; a missing client or key is not an error.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
