package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventlab/tutorgate/pkg/types"
)

func newRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := newRedisStore(t, 0)
	ctx := context.Background()

	want := &Record{
		Hash:     "deadbeef",
		Question: "what is tidal volume",
		Answer:   "the volume of air moved per breath",
		Provider: "openai",
		Usage:    &types.Usage{PromptTokens: 12, CompletionTokens: 9, TotalTokens: 21},
	}
	require.NoError(t, s.Set(ctx, want))

	got, err := s.Get(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Answer, got.Answer)
	assert.Equal(t, want.Usage, got.Usage)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRedisStore_MissReturnsNil(t *testing.T) {
	s := newRedisStore(t, 0)
	got, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_Namespacing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "custom", 0)
	require.NoError(t, s.Set(context.Background(), &Record{Hash: "h", Answer: "a"}))
	assert.True(t, mr.Exists("custom:h"))
}
