package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/internal/worker"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// NewRunCmd creates the top-level run command, a shortcut for calc run.
func NewRunCmd() *cobra.Command { return newCalcRunCmd() }

func newCalcRunCmd() *cobra.Command {
	var (
		depth   int
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "run KIND KEY",
		Short: "Compute one metric now, bypassing the queue",
		Long: `Computes the metric in-process and stores the record. With --depth, missing
inputs are computed first, up to that many levels deep. With --enqueue the
dependents of every computed record are added to the queue.`,
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

			job = types.NewJob(d.Registry.Canonical(job.Kind), job.Key)
			proc := worker.NewProcessor(d.Registry, d.Env)
			outcomes, err := proc.Compute(cmd.Context(), job, depth)

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tIMPL\tVALUE\tDEPENDENTS")
			var dependents []types.CalculationJob
			for _, o := range outcomes {
				value := "skipped"
				if o.Record != nil {
					value = formatValue(&o.Record.Value)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", o.Resolved, o.Impl, value, len(o.Dependents))
				dependents = append(dependents, o.Dependents...)
			}
			_ = w.Flush()
			if err != nil {
				if missing := worker.MissingJobs(err); len(missing) > 0 {
					fmt.Fprintln(out, color.YellowString("missing inputs (retry with a larger --depth):"))
					for _, m := range missing {
						fmt.Fprintf(out, "  %s\n", m)
					}
				}
				return err
			}

			if enqueue && len(dependents) > 0 {
				n, err := d.Queue.AddAll(cmd.Context(), dependents)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %d dependent job(s) queued\n", color.GreenString("✓"), n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "compute missing inputs up to this many levels deep")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "add dependents of computed records to the queue")
	return cmd
}
