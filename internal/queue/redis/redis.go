// Package redis implements the queue Backend on Redis/Valkey. All keys share
// one hash tag so the scripts touch a single cluster slot.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/riskreactor/internal/queue"
	luascripts "github.com/dwsmith1983/riskreactor/internal/queue/redis/lua"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const (
	defaultPrefix = "riskreactor:"
	hashTag       = "{rm-queue}"
	deadLetterCap = 1000
)

// Backend is a queue.Backend backed by Redis.
type Backend struct {
	client *goredis.Client
	prefix string

	addScript   *goredis.Script
	fetchScript *goredis.Script
	ackScript   *goredis.Script
	reapScript  *goredis.Script
	deadScript  *goredis.Script
}

var _ queue.Backend = (*Backend)(nil)

// New creates a Backend from configuration.
func New(cfg *types.RedisConfig) *Backend {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a Backend from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{
		client:      client,
		prefix:      prefix,
		addScript:   goredis.NewScript(luascripts.Add),
		fetchScript: goredis.NewScript(luascripts.Fetch),
		ackScript:   goredis.NewScript(luascripts.Ack),
		reapScript:  goredis.NewScript(luascripts.Reap),
		deadScript:  goredis.NewScript(luascripts.DeadLetter),
	}
}

func (b *Backend) key(name string) string { return b.prefix + hashTag + ":" + name }

func (b *Backend) pendingKey() string  { return b.key("pending") }
func (b *Backend) orderKey() string    { return b.key("order") }
func (b *Backend) inFlightKey() string { return b.key("inflight") }
func (b *Backend) leasesKey() string   { return b.key("leases") }
func (b *Backend) deadKey() string     { return b.key("dead") }

// Start verifies connectivity.
func (b *Backend) Start(ctx context.Context) error {
	return b.Ping(ctx)
}

// Stop closes the connection.
func (b *Backend) Stop(_ context.Context) error {
	return b.client.Close()
}

// Ping checks connectivity to the Redis server.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client.
func (b *Backend) Client() *goredis.Client {
	return b.client
}

func (b *Backend) Push(ctx context.Context, payload string) (bool, error) {
	n, err := b.addScript.Run(ctx, b.client, []string{b.pendingKey(), b.orderKey()}, payload).Int()
	if err != nil {
		return false, fmt.Errorf("redis add: %w", err)
	}
	return n == 1, nil
}

func (b *Backend) Pop(ctx context.Context, leaseUntil time.Time) (queue.Lease, bool, error) {
	token := ulid.Make().String()
	keys := []string{b.pendingKey(), b.orderKey(), b.inFlightKey(), b.leasesKey()}
	payload, err := b.fetchScript.Run(ctx, b.client, keys, leaseUntil.UnixMilli(), token).Text()
	if errors.Is(err, goredis.Nil) {
		return queue.Lease{}, false, nil
	}
	if err != nil {
		return queue.Lease{}, false, fmt.Errorf("redis fetch: %w", err)
	}
	return queue.Lease{Token: token, Payload: payload}, true, nil
}

func (b *Backend) Ack(ctx context.Context, token string) error {
	if err := b.ackScript.Run(ctx, b.client, []string{b.inFlightKey(), b.leasesKey()}, token).Err(); err != nil {
		return fmt.Errorf("redis ack: %w", err)
	}
	return nil
}

func (b *Backend) Reap(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	keys := []string{b.pendingKey(), b.orderKey(), b.inFlightKey(), b.leasesKey()}
	n, err := b.reapScript.Run(ctx, b.client, keys, now.UnixMilli(), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("redis reap: %w", err)
	}
	return n, nil
}

func (b *Backend) DeadLetter(ctx context.Context, letter queue.DeadLetter) error {
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := b.deadScript.Run(ctx, b.client, []string{b.deadKey()}, string(data), deadLetterCap).Err(); err != nil {
		return fmt.Errorf("redis dead-letter: %w", err)
	}
	return nil
}

func (b *Backend) DeadLetters(ctx context.Context, limit int) ([]queue.DeadLetter, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := b.client.LRange(ctx, b.deadKey(), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis dead letters: %w", err)
	}
	out := make([]queue.DeadLetter, 0, len(raw))
	for _, r := range raw {
		var l queue.DeadLetter
		if err := json.Unmarshal([]byte(r), &l); err != nil {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (b *Backend) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := b.client.Pipeline()
	pending := pipe.LLen(ctx, b.orderKey())
	inFlight := pipe.ZCard(ctx, b.inFlightKey())
	dead := pipe.LLen(ctx, b.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, fmt.Errorf("redis stats: %w", err)
	}
	return queue.Stats{Pending: pending.Val(), InFlight: inFlight.Val(), Dead: dead.Val()}, nil
}

func (b *Backend) Wipe(ctx context.Context) error {
	if err := b.client.Del(ctx, b.pendingKey(), b.orderKey(), b.inFlightKey(), b.leasesKey(), b.deadKey()).Err(); err != nil {
		return fmt.Errorf("redis wipe: %w", err)
	}
	return nil
}
