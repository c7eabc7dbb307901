// Package watchdog returns abandoned work to the reactor queue. A worker that
// crashes between fetch and ack leaves its job in the in-flight set with a
// lease deadline; once the lease expires the watchdog puts the job back
// through the dedup path so another worker picks it up.
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/riskreactor/internal/metrics"
	"github.com/dwsmith1983/riskreactor/internal/queue"
)

const (
	defaultInterval  = 30 * time.Second
	defaultReapLimit = 500
)

// CheckOptions configures a single watchdog pass.
type CheckOptions struct {
	Queue   *queue.Queue
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// Limit caps how many leases one pass returns. Zero means 500.
	Limit int
	// BacklogWarn logs a warning when more than this many jobs are pending.
	// Zero disables the check.
	BacklogWarn int64
}

// Report summarises one pass.
type Report struct {
	Reaped int
	Stats  queue.Stats
}

// CheckExpiredLeases requeues every in-flight job whose lease has expired and
// returns how many were returned. A pass that fills Limit is repeated until
// the in-flight set has no more expired entries or ctx is done.
func CheckExpiredLeases(ctx context.Context, opts CheckOptions) int {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultReapLimit
	}

	total := 0
	for ctx.Err() == nil {
		n, err := opts.Queue.Reap(ctx, limit)
		if err != nil {
			opts.Logger.Error("watchdog: failed to reap expired leases", "error", err)
			break
		}
		total += n
		if n < limit {
			break
		}
	}
	if total > 0 {
		opts.Metrics.Reaped(ctx, total)
		opts.Logger.Info("watchdog: returned expired leases to the queue", "count", total)
	}
	return total
}

// CheckBacklog reads the queue counters and warns when the pending backlog
// or the dead-letter list grows.
func CheckBacklog(ctx context.Context, opts CheckOptions) (queue.Stats, bool) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	stats, err := opts.Queue.Stats(ctx)
	if err != nil {
		opts.Logger.Error("watchdog: failed to read queue stats", "error", err)
		return queue.Stats{}, false
	}
	if opts.BacklogWarn > 0 && stats.Pending > opts.BacklogWarn {
		opts.Logger.Warn("watchdog: queue backlog above threshold",
			"pending", stats.Pending, "inFlight", stats.InFlight, "threshold", opts.BacklogWarn)
	}
	if stats.Dead > 0 {
		opts.Logger.Warn("watchdog: dead-lettered payloads present", "dead", stats.Dead)
	}
	return stats, true
}

// Check runs one full pass.
func Check(ctx context.Context, opts CheckOptions) Report {
	r := Report{Reaped: CheckExpiredLeases(ctx, opts)}
	r.Stats, _ = CheckBacklog(ctx, opts)
	return r
}

// Watchdog runs Check on a regular interval.
type Watchdog struct {
	opts     CheckOptions
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Watchdog. A non-positive interval means 30s.
func New(q *queue.Queue, rec *metrics.Recorder, logger *slog.Logger, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		opts:     CheckOptions{Queue: q, Metrics: rec, Logger: logger},
		interval: interval,
	}
}

// WithBacklogWarn sets the pending-job threshold for backlog warnings.
func (w *Watchdog) WithBacklogWarn(n int64) *Watchdog {
	w.opts.BacklogWarn = n
	return w
}

// Start begins the polling loop.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	w.opts.Logger.Info("watchdog started", "interval", w.interval)
}

// Stop signals the loop to stop and waits for it to finish.
func (w *Watchdog) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.opts.Logger.Info("watchdog stopped")
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	Check(ctx, w.opts)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Check(ctx, w.opts)
		}
	}
}
