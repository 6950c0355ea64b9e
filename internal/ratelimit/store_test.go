package ratelimit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestResult(t *testing.T) {
	reset := time.Unix(100, 0)
	assert.Equal(t, Result{Allowed: true, Remaining: 2, ResetAt: reset}, result(1, 3, reset))
	assert.Equal(t, Result{Allowed: true, Remaining: 0, ResetAt: reset}, result(3, 3, reset))
	assert.Equal(t, Result{Allowed: false, Remaining: 0, ResetAt: reset}, result(4, 3, reset))
}

func TestMemoryStore_FixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := store.IncrementAndCheck(ctx, "login:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, clock.now.Add(time.Minute), res.ResetAt)
	}

	res, err := store.IncrementAndCheck(ctx, "login:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	other, err := store.IncrementAndCheck(ctx, "login:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(time.Minute)
	res, err = store.IncrementAndCheck(ctx, "login:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window starts at the reset time")
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryStore_SweepsExpiredWindows(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(clock)

	for i := 0; i < 10; i++ {
		_, _ = store.IncrementAndCheck(context.Background(), fmt.Sprintf("k%d", i), 1, time.Second)
	}
	clock.Advance(2 * time.Second)
	_, _ = store.IncrementAndCheck(context.Background(), "fresh", 1, time.Second)

	assert.Len(t, store.windows, 1)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(nil)
	var wg sync.WaitGroup
	allowed := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := store.IncrementAndCheck(context.Background(), "shared", 10, time.Hour)
			allowed <- res.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	assert.Equal(t, 10, count)
}

func TestConnect(t *testing.T) {
	c, err := Connect("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)

	c, err = Connect("localhost:6380")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", c.Options().Addr)

	_, err = Connect("redis://:bad@host:notaport")
	assert.Error(t, err)
}

func TestRedisStore_UnreachableReturnsError(t *testing.T) {
	client, err := Connect("127.0.0.1:1")
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = NewRedisStore(client, nil).IncrementAndCheck(ctx, "k", 1, time.Minute)
	assert.Error(t, err)
}

func TestRedisStore_ResetFallsBackToWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := NewRedisStore(nil, clock)
	assert.Equal(t, time.Unix(1060, 0), s.resetAt(-1, time.Minute))
	assert.Equal(t, time.Unix(1030, 0), s.resetAt(30*time.Second, time.Minute))
}

// TestRedisStore_Live runs against a real server when REDIS_TEST_URL is set.
func TestRedisStore_Live(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	client, err := Connect(url)
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisStore(client, nil)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	for i := 1; i <= 2; i++ {
		res, err := store.IncrementAndCheck(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.WithinDuration(t, time.Now().Add(time.Minute), res.ResetAt, 2*time.Second)
	}
	res, err := store.IncrementAndCheck(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.NoError(t, store.Ping(ctx))
}
