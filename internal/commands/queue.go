package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue sizes and recent dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			stats, err := d.Queue.Stats(cmd.Context())
			if err != nil {
				return err
			}
			dead, err := d.Queue.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"stats": stats, "deadLetters": dead})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending: %d  in-flight: %d  dead: %d\n", stats.Pending, stats.InFlight, stats.Dead)
			if len(dead) == 0 {
				return nil
			}
			fmt.Fprintln(out, color.RedString("\nDead letters:"))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tPAYLOAD\tREASON")
			for _, dl := range dead {
				fmt.Fprintf(w, "%s\t%s\t%s\n", dl.At.Format(time.RFC3339), dl.Payload, dl.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of dead letters to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// NewRebuildQueueCmd creates the rebuild-queue command.
func NewRebuildQueueCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rebuild-queue",
		Short: "Discard every pending, in-flight and dead-lettered job",
		Long: `Clears all queue structures. Use after changing job encoding or to recover
from a corrupted queue; stored metrics are untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to wipe the queue without --yes")
			}
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Queue.Wipe(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s queue wiped\n", color.GreenString("✓"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}
