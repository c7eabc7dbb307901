package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// NewTriggerCmd creates the trigger command group.
func NewTriggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Submit domain change events",
	}
	cmd.AddCommand(newTriggerAddCmd())
	return cmd
}

func newTriggerAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add TYPE ID [DATE]",
		Short: "Enqueue the calculations a domain change invalidates",
		Long: `Expands a trigger event into calculation jobs and adds them to the queue.
DATE (YYYY-MM-DD) is required for UpdateTaskRisk and rejected otherwise.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := parseTrigger(args)
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			n, err := d.Reactor.Add(cmd.Context(), ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d job(s) queued\n", color.GreenString("✓"), ev, n)
			return nil
		},
	}
}

func parseTrigger(args []string) (types.TriggerEvent, error) {
	id, err := uuid.Parse(args[1])
	if err != nil {
		return types.TriggerEvent{}, types.Encodingf("invalid id %q: %v", args[1], err)
	}
	ev := types.NewTrigger(types.TriggerType(args[0]), id)
	if len(args) == 3 {
		if ev.Date, err = types.ParseDate(args[2]); err != nil {
			return types.TriggerEvent{}, types.Encodingf("invalid date %q: %v", args[2], err)
		}
	}
	if err := ev.Validate(); err != nil {
		return types.TriggerEvent{}, fmt.Errorf("%w: %v", types.ErrEncoding, err)
	}
	return ev, nil
}

// NewCalcCmd creates the calc command group.
func NewCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Work with individual calculation jobs",
	}
	cmd.AddCommand(newCalcAddCmd(), newCalcRunCmd())
	return cmd
}

func newCalcAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add KIND KEY",
		Short: "Enqueue one calculation job",
		Long: `Adds a single job to the queue. KEY is an entity or tenant id, "ID/YYYY-MM-DD"
for dated kinds, or "ID/TENANT" for per-tenant entity kinds. Variant kinds
are mapped to their family's canonical kind.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := types.ParseJob(args[0], args[1])
			if err != nil {
				return err
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			added, err := d.Reactor.AddCalc(cmd.Context(), job)
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s queued\n", color.GreenString("✓"), job)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s already queued\n", color.YellowString("•"), job)
			}
			return nil
		},
	}
}
