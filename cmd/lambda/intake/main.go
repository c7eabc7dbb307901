// intake Lambda receives trigger events from an SQS event source mapping and
// queues the affected calculations. Messages that fail transiently are
// returned as batch item failures for redelivery.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/riskreactor/internal/lambda"
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

func handler(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	d, err := getDeps()
	if err != nil {
		return events.SQSEventResponse{}, err
	}
	return d.Intake.HandleSQSEvent(ctx, ev)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
