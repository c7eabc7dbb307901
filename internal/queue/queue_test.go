package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/queue"
	"github.com/dwsmith1983/riskreactor/internal/queue/queuetest"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func TestMemoryConformance(t *testing.T) {
	queuetest.RunAll(t, queue.NewMemory())
}

func taskJob() types.CalculationJob {
	return types.NewJob(types.KindTaskSpecificRisk, types.DatedKey(uuid.New(), types.MustDate("2024-01-15")))
}

func TestEncode_Canonical(t *testing.T) {
	job := taskJob()
	a, err := queue.Encode(job, []string{"metrics", "domain"})
	require.NoError(t, err)
	b, err := queue.Encode(job, []string{"domain", "metrics"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, `"v":1`)
	assert.Contains(t, a, `"kind":"TaskSpecificRisk"`)

	got, err := queue.Decode(a, map[string]bool{"domain": true, "metrics": true})
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestDecode_Errors(t *testing.T) {
	job := taskJob()
	payload, err := queue.Encode(job, []string{"domain"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		bound   map[string]bool
		want    string
	}{
		{"not json", "{", nil, "unmarshalling"},
		{"unknown version", `{"v":9,"kind":"TaskSpecificRisk","key":{}}`, nil, "version 9"},
		{"unknown kind", `{"v":1,"kind":"Nope","key":{}}`, nil, "unknown metric kind"},
		{"missing key field", `{"v":1,"kind":"TaskSpecificRisk","key":{"entity_id":"` + uuid.NewString() + `"}}`, nil, "date"},
		{"unbound injectable", payload, map[string]bool{}, `"domain"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := queue.Decode(tt.payload, tt.bound)
			require.ErrorIs(t, err, types.ErrEncoding)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestQueue_AddCoalesces(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemory())
	job := taskJob()

	added, err := q.Add(ctx, job)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = q.Add(ctx, job)
	require.NoError(t, err)
	assert.False(t, added)

	n, err := q.AddAll(ctx, []types.CalculationJob{job, taskJob(), taskJob()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, q.IsEmpty(ctx))
}

func TestQueue_AddRejectsMalformedJob(t *testing.T) {
	q := queue.New(queue.NewMemory())
	_, err := q.Add(context.Background(), types.NewJob(types.KindTaskSpecificRisk, types.EntityKeyOf(uuid.New())))
	assert.ErrorIs(t, err, types.ErrEncoding)
}

func TestQueue_FetchAck(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemory())
	job := taskJob()
	_, err := q.Add(ctx, job)
	require.NoError(t, err)

	d, err := q.Fetch(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)
	assert.True(t, q.IsEmpty(ctx))
	assert.False(t, q.Idle(ctx))

	require.NoError(t, q.Ack(ctx, d))
	assert.True(t, q.Idle(ctx))
}

func TestQueue_FetchEmptyWaitsForTimeout(t *testing.T) {
	q := queue.New(queue.NewMemory(), queue.WithInitialBackoff(5*time.Millisecond))
	start := time.Now()
	_, err := q.Fetch(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, types.ErrEmpty)
	assert.True(t, queue.IsEmpty(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueue_FetchSeesLateAdd(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemory(), queue.WithInitialBackoff(5*time.Millisecond))
	job := taskJob()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Add(ctx, job)
	}()
	d, err := q.Fetch(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)
}

func TestQueue_FetchHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := queue.New(queue.NewMemory())
	_, err := q.Fetch(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_DeadLettersUndecodable(t *testing.T) {
	ctx := context.Background()
	backend := queue.NewMemory()
	q := queue.New(backend)

	_, err := backend.Push(ctx, `{"v":2,"kind":"TaskSpecificRisk","key":{}}`)
	require.NoError(t, err)
	job := taskJob()
	_, err = q.Add(ctx, job)
	require.NoError(t, err)

	d, err := q.Fetch(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].Reason, "unsupported encoding version 2")
	assert.NotEmpty(t, dead[0].ID)

	s, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{InFlight: 1, Dead: 1}, s)
}

func TestQueue_ReapExpiredLease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	q := queue.New(queue.NewMemory(),
		queue.WithLease(time.Minute),
		queue.WithClock(func() time.Time { return now }))
	job := taskJob()
	_, err := q.Add(ctx, job)
	require.NoError(t, err)
	_, err = q.Fetch(ctx, 0)
	require.NoError(t, err)

	n, err := q.Reap(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Minute)
	n, err = q.Reap(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := q.Fetch(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)
}

func TestQueue_AckReleasesOnlyItsOwnDelivery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	q := queue.New(queue.NewMemory(),
		queue.WithLease(time.Minute),
		queue.WithClock(func() time.Time { return now }))
	job := taskJob()

	_, err := q.Add(ctx, job)
	require.NoError(t, err)
	first, err := q.Fetch(ctx, 0)
	require.NoError(t, err)
	_, err = q.Add(ctx, job)
	require.NoError(t, err)
	second, err := q.Fetch(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Payload, second.Payload)
	assert.NotEqual(t, first.Token, second.Token)

	require.NoError(t, q.Ack(ctx, first))
	assert.False(t, q.Idle(ctx))

	now = now.Add(2 * time.Minute)
	n, err := q.Reap(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := q.Fetch(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)
}

func TestQueue_Wipe(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemory())
	_, err := q.AddAll(ctx, []types.CalculationJob{taskJob(), taskJob()})
	require.NoError(t, err)
	require.NoError(t, q.Wipe(ctx))
	assert.True(t, q.Idle(ctx))
}
