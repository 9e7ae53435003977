package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisStoreForTest(t *testing.T) *RedisStore[string] {
	t.Helper()
	addr := os.Getenv("EVENTSCOUT_REDIS_ADDR")
	if addr == "" {
		t.Skip("EVENTSCOUT_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	require.NoError(t, err)

	s := NewRedisStore[string](client, "eventscout-test:"+uuid.NewString(), time.Minute).OwnClient()
	t.Cleanup(func() {
		_ = s.Clear()
		_ = s.Close()
	})
	return s
}

func TestRedisStoreManagedKeys(t *testing.T) {
	s := redisStoreForTest(t)
	c := New[string](s, Options{MaxSize: 2})

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	assert.Equal(t, 2, c.Size())
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())

	c.Get("a")
	c.Set("c", "3", time.Minute)
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestRedisStoreLazyExpiry(t *testing.T) {
	s := redisStoreForTest(t)
	c := New[string](s, Options{})
	c.Set("k", "v", 50*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}
