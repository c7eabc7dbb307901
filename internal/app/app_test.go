package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/config"
	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/internal/queue"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

var demoTask = uuid.MustParse("80debf96-f381-44c7-a5a0-8b9cbdcedf01")

func TestBuild_DemoConfig(t *testing.T) {
	t.Setenv(config.EnvRedisAddr, "")
	t.Setenv(config.EnvPostgresDSN, "")
	cfg, err := config.Load("../../demo/local")
	require.NoError(t, err)

	ctx := context.Background()
	d, err := Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Nil(t, d.Breaker, "memory store is not wrapped")
	_, ok := d.Env.Metrics.(*metricstore.Memory)
	assert.True(t, ok)
	assert.Equal(t, 14, d.Env.Window.FutureDays)

	key := types.DatedKey(demoTask, types.MustDate("2026-06-01"))
	added, err := d.Reactor.AddCalc(ctx, types.NewJob(types.KindTaskSpecificRisk, key))
	require.NoError(t, err)
	assert.True(t, added)

	pool, err := d.Worker()
	require.NoError(t, err)
	_, err = pool.Drain(ctx)
	require.NoError(t, err)

	rec, err := d.Env.Metrics.Load(ctx, types.KindTaskSpecificRisk, key, nil)
	require.NoError(t, err)
	assert.Greater(t, rec.Value, 10.0)

	wd, err := d.Watchdog()
	require.NoError(t, err)
	assert.NotNil(t, wd)
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, &types.ProjectConfig{Fixtures: "/nonexistent/fixtures.yaml"}, nil)
	assert.ErrorContains(t, err, "loading domain fixtures")

	_, err = Build(ctx, &types.ProjectConfig{Worker: types.WorkerConfig{LeaseTimeout: "soon"}}, nil)
	assert.ErrorContains(t, err, "worker.leaseTimeout")

	_, err = Build(ctx, &types.ProjectConfig{MetricStore: types.BackendPostgres}, nil)
	assert.ErrorContains(t, err, "postgres.dsn")
}

func TestDeps_WatchdogRejectsBadInterval(t *testing.T) {
	d, err := Build(context.Background(), &types.ProjectConfig{}, nil)
	require.NoError(t, err)
	defer d.Close()

	d.Config.Worker.ReapInterval = "often"
	_, err = d.Watchdog()
	assert.ErrorContains(t, err, "worker.reapInterval")
}

type unreachableRedis struct {
	*queue.Memory
	stopped bool
}

func (u *unreachableRedis) Start(context.Context) error { return errors.New("dial tcp: connection refused") }

func (u *unreachableRedis) Stop(context.Context) error {
	u.stopped = true
	return nil
}

func TestBuild_ClosesRedisWhenUnreachable(t *testing.T) {
	fake := &unreachableRedis{Memory: queue.NewMemory()}
	orig := newRedisBackend
	newRedisBackend = func(*types.RedisConfig) redisBackend { return fake }
	t.Cleanup(func() { newRedisBackend = orig })

	_, err := Build(context.Background(), &types.ProjectConfig{Redis: &types.RedisConfig{Addr: "127.0.0.1:1"}}, nil)
	assert.ErrorContains(t, err, "connecting to redis")
	assert.True(t, fake.stopped)
}
