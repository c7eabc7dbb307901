package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// NewConfigCmd creates the config command group for risk model settings.
func NewConfigCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change risk model configuration labels",
	}
	cmd.PersistentFlags().StringVar(&tenant, "tenant", "", "tenant id (default: application default)")
	cmd.AddCommand(
		newConfigLabelsCmd(),
		newConfigGetCmd(&tenant),
		newConfigPutCmd(&tenant),
		newConfigDescribeCmd(&tenant),
	)
	return cmd
}

func tenantFlag(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, types.Encodingf("invalid --tenant %q", raw)
	}
	return &id, nil
}

func orNil(t *uuid.UUID) uuid.UUID {
	if t == nil {
		return uuid.Nil
	}
	return *t
}

func newConfigLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List every known label with its application default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tDEFAULT\tALLOWED")
			for _, def := range configstore.Labels() {
				allowed := make([]string, 0, len(def.Allowed))
				for _, a := range def.Allowed {
					allowed = append(allowed, string(a))
				}
				dflt := "-"
				if def.Default != nil {
					dflt = string(def.Default)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.Label, dflt, strings.Join(allowed, ","))
			}
			return w.Flush()
		},
	}
}

func newConfigGetCmd(tenant *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get LABEL",
		Short: "Print the value a tenant resolves to, application default included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tenantFlag(*tenant)
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			v, err := d.Env.Config.Resolve(cmd.Context(), args[0], orNil(t))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}
}

func newConfigPutCmd(tenant *string) *cobra.Command {
	return &cobra.Command{
		Use:   "put LABEL JSON",
		Short: "Store a value for the application default or one tenant",
		Example: `  riskreactor config put RISK_MODEL.PROJECT_TOTAL_RISK_SCORE_METRIC.THRESHOLDS '{"low":15,"medium":30}'
  riskreactor config put RISK_MODEL.TASK_SPECIFIC_RISK_SCORE_METRIC.TYPE '"STOCHASTIC_MODEL"' --tenant TENANT_ID`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tenantFlag(*tenant)
			if err != nil {
				return err
			}
			if !json.Valid([]byte(args[1])) {
				return types.Encodingf("value for %s is not valid JSON", args[0])
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Env.Config.Put(cmd.Context(), args[0], t, json.RawMessage(args[1])); err != nil {
				return err
			}
			scope := "application default"
			if t != nil {
				scope = "tenant " + t.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s set for %s\n", color.GreenString("✓"), args[0], scope)
			return nil
		},
	}
}

func newConfigDescribeCmd(tenant *string) *cobra.Command {
	return &cobra.Command{
		Use:   "describe LABEL",
		Short: "Show the default, the tenant override and the effective value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tenantFlag(*tenant)
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			desc, err := d.Env.Config.Describe(cmd.Context(), args[0], orNil(t))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), desc)
		},
	}
}
