package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tribune/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DefaultOutboxKey is the Redis list new-post mail jobs are pushed onto.
const DefaultOutboxKey = "newsletter:outbox"

// NewPostMail announces a newly published post to subscribers.
type NewPostMail struct {
	PostID     string    `json:"post_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	Recipients []string  `json:"recipients"`
	QueuedAt   time.Time `json:"queued_at"`
}

// Mailer hands newsletter mail to a delivery backend.
type Mailer interface {
	SendNewPost(ctx context.Context, mail NewPostMail) error
}

// RedisOutbox queues mail jobs on a Redis list for an external sender to drain.
type RedisOutbox struct {
	rdb *redis.Client
	key string
}

func NewRedisOutbox(rdb *redis.Client, key string) *RedisOutbox {
	if key == "" {
		key = DefaultOutboxKey
	}
	return &RedisOutbox{rdb: rdb, key: key}
}

// Key is the list the outbox pushes onto.
func (o *RedisOutbox) Key() string { return o.key }

func (o *RedisOutbox) SendNewPost(ctx context.Context, mail NewPostMail) error {
	if o.rdb == nil {
		return fmt.Errorf("newsletter outbox: redis unavailable")
	}
	if mail.QueuedAt.IsZero() {
		mail.QueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(mail)
	if err != nil {
		return fmt.Errorf("marshal mail job: %w", err)
	}
	return o.rdb.LPush(ctx, o.key, data).Err()
}

// LogMailer only logs. Used when Redis is not configured.
type LogMailer struct{}

func (LogMailer) SendNewPost(ctx context.Context, mail NewPostMail) error {
	middleware.Logger.InfoContext(ctx, "newsletter dispatch",
		slog.String("post_id", mail.PostID),
		slog.String("title", mail.Title),
		slog.Int("recipients", len(mail.Recipients)),
	)
	return nil
}
