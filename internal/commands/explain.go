package commands

import (
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/internal/explain"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// NewExplainCmd creates the explain command.
func NewExplainCmd() *cobra.Command {
	var (
		asOf     string
		asJSON   bool
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "explain KIND KEY",
		Short: "Show the inputs behind a stored metric",
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

			tree, err := explain.New(d.Registry, d.Env, maxDepth).Explain(cmd.Context(), job.Kind, job.Key, at)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), tree)
			}
			return tree.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "explain the record current at this RFC 3339 time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tree as JSON")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "stop descending after this many levels")
	return cmd
}
