package commands

import (
	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
)

// NewMetricsCommand creates the metrics command
func NewMetricsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print this process's cache counters (state restore only); use --metrics on other commands",
		Long: "Counters live in memory for a single run, so on its own this command only reports the " +
			"persistence loads done at startup. Pass the global --metrics flag to any other command " +
			"to print the counters that command produced once it finishes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return container.Metrics.WriteText(cmd.OutOrStdout())
		},
	}
}
