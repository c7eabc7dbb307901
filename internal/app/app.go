// Package app assembles the reactor and its collaborators from a project
// configuration. The CLI, the admin server and the Lambda handler share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	pgconfig "github.com/dwsmith1983/riskreactor/internal/configstore/postgres"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/metrics"
	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	ddbstore "github.com/dwsmith1983/riskreactor/internal/metricstore/dynamodb"
	pgstore "github.com/dwsmith1983/riskreactor/internal/metricstore/postgres"
	"github.com/dwsmith1983/riskreactor/internal/queue"
	redisqueue "github.com/dwsmith1983/riskreactor/internal/queue/redis"
	"github.com/dwsmith1983/riskreactor/internal/reactor"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/internal/riskmodel"
	"github.com/dwsmith1983/riskreactor/internal/watchdog"
	"github.com/dwsmith1983/riskreactor/internal/worker"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Deps holds the wired collaborators for one process.
type Deps struct {
	Config   *types.ProjectConfig
	Registry *registry.Registry
	Env      *registry.Env
	Queue    *queue.Queue
	Reactor  *reactor.Reactor
	Metrics  *metrics.Recorder
	Logger   *slog.Logger

	// Breaker is nil for the in-memory metric store.
	Breaker *metricstore.Breaker

	closers []func()
}

// redisBackend is a queue backend with a connection lifecycle.
type redisBackend interface {
	queue.Backend
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var newRedisBackend = func(cfg *types.RedisConfig) redisBackend { return redisqueue.New(cfg) }

// Build connects the configured backends and assembles the reactor. Call
// Close when done.
func Build(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Deps{Config: cfg, Logger: logger, Metrics: metrics.Default()}

	reg, err := riskmodel.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}
	d.Registry = reg

	dom, err := loadDomain(cfg, logger)
	if err != nil {
		return nil, err
	}

	var pool *pgstore.Store
	if cfg.Postgres != nil && cfg.Postgres.DSN != "" {
		pool, err = pgstore.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
	}

	store, err := d.metricStore(ctx, cfg, pool)
	if err != nil {
		d.Close()
		return nil, err
	}

	configs, err := configStore(ctx, pool, logger)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Env = &registry.Env{
		Domain:  dom,
		Sites:   dom,
		Metrics: store,
		Config:  configs,
		Clock:   domain.SystemClock{},
		Window:  cfg.Reactor.PlanningWindow,
		Logger:  logger,
	}

	q, err := d.queue(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Queue = q

	d.Reactor = reactor.New(reg, d.Env, q, reactor.WithLogger(logger), reactor.WithMetrics(d.Metrics))
	return d, nil
}

func loadDomain(cfg *types.ProjectConfig, logger *slog.Logger) (*domain.Memory, error) {
	if cfg.Fixtures == "" {
		logger.Warn("no fixtures configured, domain is empty")
		return domain.NewMemory(nil), nil
	}
	dom, err := domain.LoadMemory(cfg.Fixtures)
	if err != nil {
		return nil, fmt.Errorf("loading domain fixtures: %w", err)
	}
	return dom, nil
}

func (d *Deps) metricStore(ctx context.Context, cfg *types.ProjectConfig, pool *pgstore.Store) (metricstore.Store, error) {
	var next metricstore.Store
	switch cfg.MetricStore {
	case types.BackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres metric store requires postgres.dsn")
		}
		if err := pool.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrating metric tables: %w", err)
		}
		next = pool
	case types.BackendDynamoDB:
		s, err := ddbstore.New(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, fmt.Errorf("creating dynamodb metric store: %w", err)
		}
		next = s
	default:
		return metricstore.NewMemory(time.Now), nil
	}
	d.Breaker = metricstore.NewBreaker(next, metricstore.BreakerSettings{}, d.Logger)
	return d.Breaker, nil
}

func configStore(ctx context.Context, pool *pgstore.Store, logger *slog.Logger) (*configstore.Store, error) {
	if pool == nil {
		return configstore.New(configstore.NewMemory(), logger), nil
	}
	backend := pgconfig.New(pool.Pool())
	if err := backend.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating configurations table: %w", err)
	}
	return configstore.New(backend, logger), nil
}

func (d *Deps) queue(ctx context.Context, cfg *types.ProjectConfig) (*queue.Queue, error) {
	opts := []queue.Option{
		queue.WithLogger(d.Logger),
		queue.WithInjectables(registry.Injectables, d.Env.Bound()),
	}
	if raw := cfg.Worker.LeaseTimeout; raw != "" {
		lease, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("worker.leaseTimeout: %w", err)
		}
		opts = append(opts, queue.WithLease(lease))
	}

	if cfg.Redis == nil {
		d.Logger.Warn("no redis configured, using an in-process queue")
		return queue.New(queue.NewMemory(), opts...), nil
	}
	backend := newRedisBackend(cfg.Redis)
	if err := backend.Start(ctx); err != nil {
		_ = backend.Stop(context.Background())
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	d.closers = append(d.closers, func() { _ = backend.Stop(context.Background()) })
	return queue.New(backend, opts...), nil
}

// Worker builds a pool over the shared queue from the worker section.
func (d *Deps) Worker() (*worker.Pool, error) {
	wc, err := worker.ConfigFrom(d.Config.Worker)
	if err != nil {
		return nil, err
	}
	return worker.New(d.Registry, d.Env, d.Queue, wc,
		worker.WithLogger(d.Logger), worker.WithMetrics(d.Metrics)), nil
}

// Watchdog builds the lease reaper for the shared queue.
func (d *Deps) Watchdog() (*watchdog.Watchdog, error) {
	var interval time.Duration
	if raw := d.Config.Worker.ReapInterval; raw != "" {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("worker.reapInterval: %w", err)
		}
		interval = v
	}
	return watchdog.New(d.Queue, d.Metrics, d.Logger, interval), nil
}

// Close releases backend connections in reverse order of creation.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
