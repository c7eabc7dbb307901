// Package commands implements the CLI subcommands for the riskreactor binary.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/internal/app"
	"github.com/dwsmith1983/riskreactor/internal/config"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Process exit codes.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitMissingDependency    = 2
	ExitMissingConfiguration = 3
)

var configDir = "."

// BindFlags registers the flags shared by every subcommand on root.
func BindFlags(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&configDir, "config-dir", "C", ".", "directory holding "+config.FileName)
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, types.ErrMissingDependency), errors.Is(err, types.ErrMissingMetric):
		return ExitMissingDependency
	case errors.Is(err, types.ErrMissingConfiguration):
		return ExitMissingConfiguration
	default:
		return ExitFailure
	}
}

// loadConfig reads the project config and resolves any secret references.
func loadConfig(ctx context.Context) (*types.ProjectConfig, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if config.NeedsSecrets(cfg) {
		sm, err := config.NewSecretsClient(ctx, "")
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, cfg, sm); err != nil {
			return nil, fmt.Errorf("resolving secrets: %w", err)
		}
	}
	return cfg, nil
}

// loadDeps loads the config and wires the reactor.
func loadDeps(ctx context.Context) (*app.Deps, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, slog.Default())
}

// parseAsOf parses an optional RFC 3339 timestamp flag.
func parseAsOf(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("--as-of must be RFC 3339: %w", err)
	}
	return &t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4g", *v)
}
