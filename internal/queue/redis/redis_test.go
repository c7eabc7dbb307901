//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/queue"
	"github.com/dwsmith1983/riskreactor/internal/queue/queuetest"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func setupTestBackend(t *testing.T) *Backend {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("riskreactor-test-%d:", time.Now().UnixNano())
	b := NewFromClient(client, prefix)

	t.Cleanup(func() {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})

	return b
}

func TestConformance(t *testing.T) {
	queuetest.RunAll(t, setupTestBackend(t))
}

func TestKeysShareHashSlot(t *testing.T) {
	b := setupTestBackend(t)
	ctx := context.Background()
	slots := map[int64]bool{}
	for _, k := range []string{b.pendingKey(), b.orderKey(), b.inFlightKey(), b.leasesKey(), b.deadKey()} {
		slot, err := b.client.ClusterKeySlot(ctx, k).Result()
		if err != nil {
			t.Skipf("CLUSTER KEYSLOT unsupported: %v", err)
		}
		slots[slot] = true
	}
	assert.Len(t, slots, 1)
}

func TestQueueOverRedis(t *testing.T) {
	b := setupTestBackend(t)
	ctx := context.Background()
	q := queue.New(b)

	job := types.NewJob(types.KindContractorSafetyScore, types.EntityKeyOf(uuid.MustParse("7d1b8f1e-6b3e-4f6a-9d8a-0c9b2f1a3e55")))
	for range 10 {
		_, err := q.Add(ctx, job)
		require.NoError(t, err)
	}

	d, err := q.Fetch(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)
	require.NoError(t, q.Ack(ctx, d))

	_, err = q.Fetch(ctx, 200*time.Millisecond)
	assert.ErrorIs(t, err, types.ErrEmpty)
}
