package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
	"github.com/ericvoltolin/xc-mcp/internal/version"
)

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the build and the persisted state schema it reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current()
			out := cmd.OutOrStdout()
			if asJSON {
				return helpers.PrintJSON(out, struct {
					version.Info
					StateSchema string `json:"state_schema"`
					GoVersion   string `json:"go_version"`
				}{info, persistence.SchemaVersion, runtime.Version()})
			}

			fmt.Fprintf(out, "xcmcp version %s\n", info.Version)
			if info.Commit != "" {
				commit := info.Commit
				if info.Modified {
					commit += " (modified)"
				}
				fmt.Fprintf(out, "Commit: %s\n", commit)
			}
			if info.BuildDate != "" {
				fmt.Fprintf(out, "Built: %s\n", info.BuildDate)
			}
			fmt.Fprintf(out, "State schema: %s\n", persistence.SchemaVersion)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
