package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
)

// NewDoctorCommand creates the doctor command
func NewDoctorCommand(container *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check native tools, persistence and the build archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.DoctorService == nil {
				return fmt.Errorf("doctor service unavailable")
			}
			report, err := container.DoctorService.Run(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				if jsonErr := helpers.PrintJSON(out, report); jsonErr != nil {
					return jsonErr
				}
			} else {
				displayDoctorReport(out, report)
			}
			if err != nil {
				return fmt.Errorf("diagnostics completed with errors: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func displayDoctorReport(out io.Writer, report domain.HealthReport) {
	for _, check := range report.Checks {
		fmt.Fprintf(out, "[%s] %s - %s\n", strings.ToUpper(string(check.Status)), check.Name, check.Details)
		if check.Hint != "" {
			fmt.Fprintf(out, "       fix: %s\n", check.Hint)
		}
	}
	fmt.Fprintf(out, "\n%d ok, %d warnings, %d errors\n",
		report.Count(domain.HealthOK), report.Count(domain.HealthWarn), report.Count(domain.HealthError))
}
