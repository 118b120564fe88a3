package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPopsDueItemsInOrder(t *testing.T) {
	t.Parallel()
	q := NewRedis(newTestRedis(t), "reminders", 10*time.Millisecond)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, q.Push(ctx, Item{ID: "second", DueAt: now.Add(-time.Second)}))
	require.NoError(t, q.Push(ctx, Item{ID: "first", DueAt: now.Add(-2 * time.Second)}))

	it, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", it.ID)
	assert.Equal(t, now.Add(-2*time.Second).UnixMilli(), it.DueAt.UnixMilli())

	it, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", it.ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisHoldsItemsUntilDue(t *testing.T) {
	t.Parallel()
	q := NewRedis(newTestRedis(t), "reminders", 10*time.Millisecond)

	due := time.Now().Add(60 * time.Millisecond)
	require.NoError(t, q.Push(context.Background(), Item{ID: "x", DueAt: due}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	it, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", it.ID)
	assert.False(t, time.Now().Before(due.Truncate(time.Millisecond)))
}

func TestRedisConcurrentConsumersClaimOnce(t *testing.T) {
	t.Parallel()
	client := newTestRedis(t)
	producer := NewRedis(client, "resets", 5*time.Millisecond)
	ctx := context.Background()

	const total = 40
	past := time.Now().Add(-time.Minute)
	for i := range total {
		require.NoError(t, producer.Push(ctx, Item{ID: string(rune('A' + i)), DueAt: past}))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	popCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer := NewRedis(client, "resets", 5*time.Millisecond)
			for {
				it, err := consumer.Pop(popCtx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[it.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s claimed %d times", id, n)
	}
}

func TestRedisClosed(t *testing.T) {
	t.Parallel()
	q := NewRedis(newTestRedis(t), "reminders", 10*time.Millisecond)
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(context.Background(), Item{ID: "x", DueAt: time.Now()}), ErrClosed)
	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
