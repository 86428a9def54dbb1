package notifications

import (
	"encoding/json"
	"time"
)

// Feed event types.
const (
	EventPostCreated         = "post_created"
	EventPostUpdated         = "post_updated"
	EventPostDeleted         = "post_deleted"
	EventPostReactionUpdated = "post_reaction_updated"
	EventPostViewed          = "post_viewed"
	EventMessagesDropped     = "messages_dropped"
)

// FeedEvent is the envelope sent over pub/sub and to websocket clients.
type FeedEvent struct {
	Type    string          `json:"type"`
	PostID  string          `json:"post_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Origin identifies the publishing instance so it can skip its own echo.
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// NewFeedEvent builds an event with payload marshalled to JSON. A payload
// that cannot be encoded is dropped.
func NewFeedEvent(eventType, postID string, payload interface{}) FeedEvent {
	ev := FeedEvent{Type: eventType, PostID: postID, At: time.Now().UTC()}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// Encode returns the wire form of the event.
func (e FeedEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeFeedEvent parses a wire payload.
func DecodeFeedEvent(data []byte) (FeedEvent, error) {
	var ev FeedEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// Mutates reports whether the event changes the post collection, which means
// sibling instances must re-sync their store.
func (e FeedEvent) Mutates() bool {
	switch e.Type {
	case EventPostCreated, EventPostUpdated, EventPostDeleted, EventPostReactionUpdated, EventPostViewed:
		return true
	}
	return false
}
