package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOutbox_PushesJob(t *testing.T) {
	rdb := newTestRedis(t)
	outbox := NewRedisOutbox(rdb, "")
	assert.Equal(t, DefaultOutboxKey, outbox.Key())

	ctx := context.Background()
	require.NoError(t, outbox.SendNewPost(ctx, NewPostMail{
		PostID:     "p1",
		Title:      "Hello",
		Recipients: []string{"a@example.com", "b@example.com"},
	}))

	raw, err := rdb.RPop(ctx, DefaultOutboxKey).Result()
	require.NoError(t, err)
	var job NewPostMail
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, "p1", job.PostID)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, job.Recipients)
	assert.False(t, job.QueuedAt.IsZero())
}

func TestRedisOutbox_NoRedis(t *testing.T) {
	assert.Error(t, NewRedisOutbox(nil, "x").SendNewPost(context.Background(), NewPostMail{}))
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, LogMailer{}.SendNewPost(context.Background(), NewPostMail{PostID: "p"}))
}
