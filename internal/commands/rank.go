package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// NewRankCmd creates the rank command group.
func NewRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank stored metrics as LOW, MEDIUM, HIGH or UNKNOWN",
	}
	cmd.AddCommand(newRankMetricCmd(), newRankWorkPackagesCmd())
	return cmd
}

func newRankMetricCmd() *cobra.Command {
	var (
		tenant string
		asOf   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "metric KIND KEY",
		Short: "Rank one metric instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := types.ParseJob(args[0], args[1])
			if err != nil {
				return err
			}
			at, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			var tenantID uuid.UUID
			if tenant != "" {
				if tenantID, err = uuid.Parse(tenant); err != nil {
					return types.Encodingf("invalid --tenant %q", tenant)
				}
			} else if tenantID, err = d.Registry.Tenant(cmd.Context(), d.Env, job); err != nil {
				return err
			}

			res, err := d.Reactor.Ranking().Rank(cmd.Context(), job.Kind, job.Key, tenantID, at)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s value=%s\n", job, levelString(res.Level), formatValue(res.Value))
			if res.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  reason: %s\n", res.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant whose thresholds apply (default: the entity's tenant)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "rank the record current at this RFC 3339 time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRankWorkPackagesCmd() *cobra.Command {
	var (
		date   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "work-packages TENANT",
		Short: "Rank the total risk of every active work package of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(args[0])
			if err != nil {
				return types.Encodingf("invalid tenant %q", args[0])
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			day := d.Env.Today()
			if date != "" {
				if day, err = types.ParseDate(date); err != nil {
					return types.Encodingf("invalid --date %q", date)
				}
			}

			ranks, err := d.Reactor.Ranking().RankWorkPackages(cmd.Context(), tenantID, day)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), ranks)
			}
			if len(ranks) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No active work packages on %s.\n", day)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORK PACKAGE\tNAME\tLEVEL\tVALUE")
			for _, r := range ranks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.WorkPackage.ID, r.WorkPackage.Name, levelString(r.Level), formatValue(r.Value))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to rank, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func levelString(l types.RiskLevel) string {
	switch l {
	case types.RiskHigh:
		return color.RedString(string(l))
	case types.RiskMedium:
		return color.YellowString(string(l))
	case types.RiskLow:
		return color.GreenString(string(l))
	default:
		return color.New(color.Faint).Sprint(string(l))
	}
}
