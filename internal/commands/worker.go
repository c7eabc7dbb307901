package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/riskreactor/internal/app"
	"github.com/dwsmith1983/riskreactor/internal/intake"
	"github.com/dwsmith1983/riskreactor/internal/server"
	"github.com/dwsmith1983/riskreactor/internal/telemetry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const defaultShutdownTimeout = 30 * time.Second

type workerOptions struct {
	concurrency int
	noServer    bool
	noIntake    bool
}

// NewWorkerCmd creates the worker command.
func NewWorkerCmd(version string) *cobra.Command {
	var opts workerOptions

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the calculation worker pool",
		Long: `Starts the worker pool and the lease watchdog. When configured, the admin
API and the SQS/Kafka trigger intake run in the same process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), version, opts)
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "override worker.concurrency")
	cmd.Flags().BoolVar(&opts.noServer, "no-server", false, "do not start the admin API")
	cmd.Flags().BoolVar(&opts.noIntake, "no-intake", false, "do not consume trigger intake sources")
	return cmd
}

func runWorker(ctx context.Context, version string, opts workerOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if opts.concurrency > 0 {
		cfg.Worker.Concurrency = opts.concurrency
	}
	shutdownTimeout := defaultShutdownTimeout
	if raw := cfg.Worker.ShutdownTimeout; raw != "" {
		if shutdownTimeout, err = time.ParseDuration(raw); err != nil {
			return fmt.Errorf("worker.shutdownTimeout: %w", err)
		}
	}

	logger := slog.Default()
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	d, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	pool, err := d.Worker()
	if err != nil {
		return err
	}
	wd, err := d.Watchdog()
	if err != nil {
		return err
	}
	wd.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })

	if cfg.Server != nil && !opts.noServer {
		srv := server.New(*cfg.Server, d.Reactor, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(stopCtx)
		})
	}

	if cfg.Intake != nil && !opts.noIntake {
		closeIntake, err := startIntake(gctx, g, cfg.Intake, d, logger)
		if err != nil {
			stop()
			_ = g.Wait()
			wd.Stop(context.Background())
			return err
		}
		defer closeIntake()
	}

	color.Green("Worker running. Press Ctrl+C to stop.")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		color.Yellow("\nShutting down, finishing in-flight jobs...")
		select {
		case err = <-done:
		case <-time.After(shutdownTimeout):
			err = fmt.Errorf("workers did not stop within %s", shutdownTimeout)
		}
	}
	wd.Stop(context.Background())
	if err != nil {
		return err
	}
	color.Green("Worker stopped gracefully")
	return nil
}

// startIntake launches the configured trigger sources on g.
func startIntake(ctx context.Context, g *errgroup.Group, in *types.IntakeConfig, d *app.Deps, logger *slog.Logger) (func(), error) {
	h := intake.NewHandler(d.Reactor, logger)
	closers := []func(){}

	if in.SQS != nil {
		client, err := intake.NewSQSClient(ctx, in.SQS.Region)
		if err != nil {
			return nil, err
		}
		p := intake.NewSQSPoller(client, in.SQS, h, logger)
		g.Go(func() error { return p.Run(ctx) })
	}
	if in.Kafka != nil {
		c := intake.NewKafkaConsumer(intake.NewKafkaReader(in.Kafka), in.Kafka.Topic, h, logger)
		g.Go(func() error { return c.Run(ctx) })
		closers = append(closers, func() {
			if err := c.Close(); err != nil {
				logger.Warn("closing kafka reader", "error", err)
			}
		})
	}

	fmt.Fprintln(os.Stderr, color.CyanString("Intake: sqs=%t kafka=%t", in.SQS != nil, in.Kafka != nil))
	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
