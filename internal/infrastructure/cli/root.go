package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCmd builds the container and wires the cobra root command. Callers
// must Shutdown the returned container once the command has run so pending
// state saves reach disk.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, *app.Container, error) {
	container, err := app.BuildContainer(ctx, app.Options{
		Verbose:    opts.Verbose,
		ConfigPath: opts.ConfigPath,
	})
	if err != nil {
		return nil, nil, err
	}
	return newRootCommand(container), container, nil
}

func newRootCommand(container *app.Container) *cobra.Command {
	root := &cobra.Command{
		Use:   "xcmcp",
		Short: "xcmcp - Xcode tooling state cache",
		Long: "xcmcp caches simulator, project and build state between Xcode tool invocations " +
			"and stores large tool outputs for progressive retrieval.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var showMetrics bool
	root.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print this run's cache counters to stderr when the command finishes")
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if !showMetrics || cmd.Name() == "metrics" {
			return nil
		}
		return container.Metrics.WriteText(cmd.ErrOrStderr())
	}

	root.AddCommand(commands.NewDevicesCommand(container))
	root.AddCommand(commands.NewProjectCommand(container))
	root.AddCommand(commands.NewResponsesCommand(container))
	root.AddCommand(commands.NewPersistenceCommand(container))
	root.AddCommand(commands.NewMetricsCommand(container))
	root.AddCommand(commands.NewConfigCommand(container))
	root.AddCommand(commands.NewDoctorCommand(container))
	root.AddCommand(commands.NewVersionCommand())
	return root
}
