package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
)

// NewPersistenceCommand creates the persistence command with all subcommands
func NewPersistenceCommand(container *app.Container) *cobra.Command {
	persistenceCmd := &cobra.Command{
		Use:   "persistence",
		Short: "Control on-disk cache state",
	}

	persistenceCmd.AddCommand(
		newPersistenceEnableCommand(container),
		newPersistenceDisableCommand(container),
		newPersistenceStatusCommand(container),
	)

	return persistenceCmd
}

func newPersistenceEnableCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "enable [dir]",
		Short: "Enable persistence, optionally in a specific directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			result := container.Persistence.Enable(dir)
			if !result.Success {
				return fmt.Errorf("failed to enable persistence: %s", result.Message)
			}
			container.Restore()
			if err := savePersistenceSettings(container, domain.PersistenceSettings{Enabled: true, Dir: dir}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
}

func newPersistenceDisableCommand(container *app.Container) *cobra.Command {
	var clearData bool

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable persistence",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := container.Persistence.Disable(clearData)
			if !result.Success {
				return fmt.Errorf("failed to disable persistence: %s", result.Message)
			}
			if err := savePersistenceSettings(container, domain.PersistenceSettings{Enabled: false}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearData, "clear", false, "Delete persisted cache files")
	return cmd
}

func newPersistenceStatusCommand(container *app.Container) *cobra.Command {
	var storage, asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether persistence is enabled and what it stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := container.Persistence.Status(storage)
			out := cmd.OutOrStdout()
			if asJSON {
				return helpers.PrintJSON(out, status)
			}
			displayPersistenceStatus(out, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&storage, "storage", false, "Include disk usage")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func savePersistenceSettings(container *app.Container, settings domain.PersistenceSettings) error {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}
	cfg := container.Config
	cfg.Persistence = settings
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	container.Config = cfg
	return nil
}

func displayPersistenceStatus(out io.Writer, status persistence.Status) {
	if !status.Enabled {
		fmt.Fprintln(out, "Persistence: disabled")
		fmt.Fprintln(out, MsgPersistenceDisabledHint)
		return
	}
	fmt.Fprintln(out, "Persistence: enabled")
	fmt.Fprintf(out, "Directory: %s\n", status.Dir)
	fmt.Fprintf(out, "Schema version: %s\n", status.SchemaVersion)
	if status.Storage == nil {
		return
	}
	fmt.Fprintf(out, "Size: %s in %d files\n", helpers.FormatBytes(status.Storage.TotalBytes), status.Storage.FileCount)
	fmt.Fprintf(out, "Last saved: %s\n", formatLastSaved(status.Storage.LastSaved))
	fmt.Fprintf(out, "Writable: %t\n", status.Storage.Writable)
	fmt.Fprintf(out, "Pending saves: %d\n", status.Storage.PendingSaves)
}

func formatLastSaved(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return helpers.FormatAge(t)
}
