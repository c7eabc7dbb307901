// watchdog Lambda returns expired in-flight leases to the reactor queue.
// Invoked on a regular interval (e.g. every minute) by a scheduled rule.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/riskreactor/internal/lambda"
	"github.com/dwsmith1983/riskreactor/internal/watchdog"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func handler(ctx context.Context) error {
	d, err := getDeps()
	if err != nil {
		return err
	}

	report := watchdog.Check(ctx, watchdog.CheckOptions{
		Queue:   d.App.Queue,
		Metrics: d.App.Metrics,
		Logger:  d.Logger,
	})

	d.Logger.Info("watchdog scan complete", "reaped", report.Reaped,
		"pending", report.Stats.Pending, "inFlight", report.Stats.InFlight, "deadLetters", report.Stats.Dead)
	return nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
