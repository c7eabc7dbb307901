// Package lambda provides shared initialization for the Lambda handlers.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dwsmith1983/riskreactor/internal/app"
	"github.com/dwsmith1983/riskreactor/internal/config"
	"github.com/dwsmith1983/riskreactor/internal/intake"
)

// Environment read by Init.
const (
	EnvConfigPath = "RISKREACTOR_CONFIG"
	EnvRegion     = "AWS_REGION"
)

const defaultConfigPath = "/var/task/riskreactor.yaml"

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	App    *app.Deps
	Intake *intake.Handler
	Logger *slog.Logger
}

// Init loads the bundled project configuration, resolves secrets and wires
// the reactor.
// Reads: RISKREACTOR_CONFIG, AWS_REGION
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	path := envOrDefault(EnvConfigPath, defaultConfigPath)
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if config.NeedsSecrets(cfg) {
		region := os.Getenv(EnvRegion)
		if region == "" {
			return nil, fmt.Errorf("%s environment variable required to resolve secrets", EnvRegion)
		}
		sm, err := config.NewSecretsClient(ctx, region)
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, cfg, sm); err != nil {
			return nil, fmt.Errorf("resolving secrets: %w", err)
		}
	}

	d, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Deps{
		App:    d,
		Intake: intake.NewHandler(d.Reactor, logger),
		Logger: logger,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
