// Package queuetest provides shared conformance tests for queue.Backend
// implementations. Each test wipes the backend before it runs.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/queue"
)

// RunAll runs the complete backend conformance suite as subtests.
func RunAll(t *testing.T, b queue.Backend) {
	t.Helper()

	t.Run("PushDedup", func(t *testing.T) { TestPushDedup(t, b) })
	t.Run("FIFO", func(t *testing.T) { TestFIFO(t, b) })
	t.Run("ReaddWhileInFlight", func(t *testing.T) { TestReaddWhileInFlight(t, b) })
	t.Run("LeaseReap", func(t *testing.T) { TestLeaseReap(t, b) })
	t.Run("ConcurrentPop", func(t *testing.T) { TestConcurrentPop(t, b) })
	t.Run("DeadLetters", func(t *testing.T) { TestDeadLetters(t, b) })
	t.Run("Wipe", func(t *testing.T) { TestWipe(t, b) })
}

func reset(t *testing.T, b queue.Backend) context.Context {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Wipe(ctx))
	return ctx
}

func lease() time.Time { return time.Now().Add(time.Minute) }

// TestPushDedup validates that a pending payload is only queued once.
func TestPushDedup(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)

	added, err := b.Push(ctx, "a")
	require.NoError(t, err)
	assert.True(t, added)
	for range 5 {
		added, err = b.Push(ctx, "a")
		require.NoError(t, err)
		assert.False(t, added)
	}

	s, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Pending)
}

// TestFIFO validates insertion order.
func TestFIFO(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)
	for _, p := range []string{"a", "b", "c", "a"} {
		_, err := b.Push(ctx, p)
		require.NoError(t, err)
	}
	var got []string
	for {
		l, ok, err := b.Pop(ctx, lease())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, l.Payload)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

// TestReaddWhileInFlight validates that a fetched payload may be queued and
// delivered again, each delivery holding its own lease.
func TestReaddWhileInFlight(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)
	_, err := b.Push(ctx, "a")
	require.NoError(t, err)
	first, ok, err := b.Pop(ctx, lease())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", first.Payload)
	assert.NotEmpty(t, first.Token)

	added, err := b.Push(ctx, "a")
	require.NoError(t, err)
	assert.True(t, added)

	s, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Pending: 1, InFlight: 1}, s)

	require.NoError(t, b.Ack(ctx, first.Token))
	s, err = b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.InFlight)

	t.Run("second delivery survives first ack", func(t *testing.T) {
		ctx := reset(t, b)
		expired := time.Now().Add(-time.Second)
		_, err := b.Push(ctx, "a")
		require.NoError(t, err)
		first, ok, err := b.Pop(ctx, expired)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = b.Push(ctx, "a")
		require.NoError(t, err)
		second, ok, err := b.Pop(ctx, expired)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first.Payload, second.Payload)
		assert.NotEqual(t, first.Token, second.Token)

		s, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.InFlight)

		require.NoError(t, b.Ack(ctx, first.Token))
		n, err := b.Reap(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		l, ok, err := b.Pop(ctx, lease())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a", l.Payload)
	})
}

// TestLeaseReap validates that only expired leases return to the queue.
func TestLeaseReap(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)
	now := time.Now()
	for _, p := range []string{"expired", "live"} {
		_, err := b.Push(ctx, p)
		require.NoError(t, err)
	}
	_, _, err := b.Pop(ctx, now.Add(-time.Second))
	require.NoError(t, err)
	_, _, err = b.Pop(ctx, now.Add(time.Hour))
	require.NoError(t, err)

	n, err := b.Reap(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l, ok, err := b.Pop(ctx, lease())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "expired", l.Payload)
}

// TestConcurrentPop validates that concurrent consumers never share a payload.
func TestConcurrentPop(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)
	const n = 50
	for i := range n {
		_, err := b.Push(ctx, fmt.Sprintf("job-%d", i))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				l, ok, err := b.Pop(ctx, lease())
				if err != nil || !ok {
					return
				}
				mu.Lock()
				seen[l.Payload]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for p, c := range seen {
		assert.Equal(t, 1, c, p)
	}
}

// TestDeadLetters validates the dead-letter list keeps the newest entries.
func TestDeadLetters(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)
	at := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, b.DeadLetter(ctx, queue.DeadLetter{
			ID: fmt.Sprintf("dl-%d", i), Payload: "x", Reason: "bad", At: at,
		}))
	}
	got, err := b.DeadLetters(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dl-1", got[0].ID)
	assert.Equal(t, "dl-2", got[1].ID)
	assert.True(t, at.Equal(got[1].At))
}

// TestWipe validates that every structure is cleared.
func TestWipe(t *testing.T, b queue.Backend) {
	ctx := reset(t, b)
	_, err := b.Push(ctx, "a")
	require.NoError(t, err)
	_, err = b.Push(ctx, "b")
	require.NoError(t, err)
	_, _, err = b.Pop(ctx, lease())
	require.NoError(t, err)
	require.NoError(t, b.DeadLetter(ctx, queue.DeadLetter{ID: "x"}))

	require.NoError(t, b.Wipe(ctx))
	s, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{}, s)

	added, err := b.Push(ctx, "b")
	require.NoError(t, err)
	assert.True(t, added)
}
