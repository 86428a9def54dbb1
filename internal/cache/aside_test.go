package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetClient(rdb)
	t.Cleanup(func() {
		SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

func TestAside_FetchesOnceThenServesFromCache(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{Name: "posts", Count: 3}
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, "thing", &first, time.Minute, fetch(&first)))
	var second cachedThing
	require.NoError(t, Aside(ctx, "thing", &second, time.Minute, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("thing"))

	Invalidate(ctx, "thing")
	assert.False(t, mr.Exists("thing"))
}

func TestAside_PropagatesFetchError(t *testing.T) {
	withMiniredis(t)
	boom := errors.New("boom")

	var dest cachedThing
	err := Aside(context.Background(), "broken", &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestAside_WithoutRedisCallsFetch(t *testing.T) {
	SetClient(nil)
	calls := 0
	var dest cachedThing
	for i := 0; i < 2; i++ {
		require.NoError(t, Aside(context.Background(), "k", &dest, time.Minute, func() error {
			calls++
			return nil
		}))
	}
	assert.Equal(t, 2, calls)
}
