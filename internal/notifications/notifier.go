// Package notifications delivers feed events between instances and to
// websocket clients, and hands newsletter mail to a delivery backend.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"tribune/internal/middleware"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FeedChannel is the Redis pub/sub channel carrying feed events.
const FeedChannel = "tribune:feed"

// Notifier publishes feed events into Redis. With a nil client every call is
// a no-op and the instance runs standalone.
type Notifier struct {
	rdb    *redis.Client
	origin string
}

// NewNotifier creates a Notifier with a fresh instance identity.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, origin: uuid.NewString()}
}

// Enabled reports whether events leave this process.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// Origin is this instance's identity stamped on published events.
func (n *Notifier) Origin() string {
	if n == nil {
		return ""
	}
	return n.origin
}

// PublishFeedEvent stamps the event with this instance's origin and publishes it.
func (n *Notifier) PublishFeedEvent(ctx context.Context, ev FeedEvent) error {
	if !n.Enabled() {
		return nil
	}
	ev.Origin = n.origin
	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	return n.rdb.Publish(ctx, FeedChannel, data).Err()
}

// StartFeedSubscriber subscribes to FeedChannel and calls onEvent for every
// decodable message until ctx is cancelled.
func (n *Notifier) StartFeedSubscriber(ctx context.Context, onEvent func(FeedEvent)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, FeedChannel)
	// Wait for the subscription to be confirmed so events published right
	// after this call are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", FeedChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := DecodeFeedEvent([]byte(msg.Payload))
				if err != nil {
					middleware.Logger.Warn("dropping malformed feed event", slog.String("error", err.Error()))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in feed subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onEvent(ev)
				}()
			}
		}
	}()

	return nil
}
