package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/riskreactor/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "riskreactor",
		Short: "Event-driven risk model reactor for worker safety",
		Long: `riskreactor keeps worker-safety risk scores current. Domain changes are
expanded into calculation jobs, a worker pool recomputes the affected
metrics in dependency order, and stored scores are ranked per tenant.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.BindFlags(root)

	root.AddCommand(
		commands.NewWorkerCmd(version),
		commands.NewTriggerCmd(),
		commands.NewCalcCmd(),
		commands.NewRunCmd(),
		commands.NewExplainCmd(),
		commands.NewRankCmd(),
		commands.NewStatusCmd(),
		commands.NewRebuildQueueCmd(),
		commands.NewConfigCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(commands.ExitCode(err))
	}
}
