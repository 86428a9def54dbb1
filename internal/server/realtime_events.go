package server

import (
	"context"
	"time"

	"tribune/internal/notifications"
)

const publishTimeout = 2 * time.Second

// publishPostEvent fans a post change out to live-feed clients here and, via
// Redis, to sibling instances so they re-sync their stores. Publishing always
// happens; the live_feed flag only gates who may connect.
func (s *Server) publishPostEvent(ctx context.Context, eventType, id string, payload interface{}) {
	if s.hub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	s.hub.Publish(ctx, s.notifier, notifications.NewFeedEvent(eventType, id, payload))
}
