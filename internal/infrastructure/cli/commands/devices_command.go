package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
)

// NewDevicesCommand creates the devices command with all subcommands
func NewDevicesCommand(container *app.Container) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect cached simulator state",
	}

	devicesCmd.AddCommand(
		newDevicesListCommand(container),
		newDevicesPreferredCommand(container),
		newDevicesUseCommand(container),
		newDevicesBootCommand(container),
		newDevicesBootEventCommand(container),
		newDevicesStateCommand(container),
		newDevicesStatsCommand(container),
		newDevicesClearCommand(container),
	)

	return devicesCmd
}

func newDevicesClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached enumeration and boot states; usage history is kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			container.Devices.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), MsgDevicesCleared)
			return nil
		},
	}
}

func newDevicesListCommand(container *app.Container) *cobra.Command {
	var (
		force      bool
		deviceType string
		runtime    string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List simulators, newest use first when filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deviceType != "" || runtime != "" {
				if force {
					if _, err := container.Devices.DeviceList(cmd.Context(), true); err != nil {
						return fmt.Errorf("failed to refresh devices: %w", err)
					}
				}
				return listAvailableDevices(cmd.Context(), cmd.OutOrStdout(), container, deviceType, runtime, asJSON)
			}
			return listAllDevices(cmd.Context(), cmd.OutOrStdout(), container, force, asJSON)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-enumerate even when the cached list is fresh")
	cmd.Flags().StringVar(&deviceType, "type", "", "Only available devices whose name or type contains this")
	cmd.Flags().StringVar(&runtime, "runtime", "", "Only available devices on this runtime (e.g. \"iOS 17.0\")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newDevicesPreferredCommand(container *app.Container) *cobra.Command {
	var project, deviceType string

	cmd := &cobra.Command{
		Use:   "preferred",
		Short: "Show the device a project would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			device, ok, err := container.Devices.PreferredDevice(cmd.Context(), project, deviceType)
			if err != nil {
				return fmt.Errorf("failed to resolve preferred device: %w", err)
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, MsgNoPreferredDevice)
				return nil
			}
			renderDeviceRow(out, device)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project key whose pinned device wins")
	cmd.Flags().StringVar(&deviceType, "type", "", "Device type filter")
	return cmd
}

func newDevicesUseCommand(container *app.Container) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "use <udid>",
		Short: "Record that a device was used, optionally pinning it to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Devices.RecordUsage(args[0], project); err != nil {
				return fmt.Errorf("failed to record usage: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded use of %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project key to pin the device to")
	return cmd
}

func newDevicesBootCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "boot <udid>",
		Short: "Mark a device as booting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Devices.MarkBooting(args[0]); err != nil {
				return fmt.Errorf("failed to mark device booting: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], domain.BootStateBooting)
			return nil
		},
	}
}

func newDevicesBootEventCommand(container *app.Container) *cobra.Command {
	var (
		success  bool
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "boot-event <udid>",
		Short: "Record the outcome of a boot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var took *time.Duration
			if cmd.Flags().Changed("duration") {
				took = &duration
			}
			if err := container.Devices.RecordBootEvent(args[0], success, took); err != nil {
				return fmt.Errorf("failed to record boot event: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], container.Devices.BootState(args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&success, "success", false, "Whether the boot succeeded (--success=false records a failure)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "How long the boot took")
	_ = cmd.MarkFlagRequired("success")
	return cmd
}

func newDevicesStateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "state <udid>",
		Short: "Show the last known boot state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), container.Devices.BootState(args[0]))
			return nil
		},
	}
}

func newDevicesStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show device cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			displayDeviceStats(cmd.OutOrStdout(), container.Devices.Stats())
			return nil
		},
	}
}

func listAllDevices(ctx context.Context, out io.Writer, container *app.Container, force, asJSON bool) error {
	list, err := container.Devices.DeviceList(ctx, force)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if asJSON {
		return helpers.PrintJSON(out, list)
	}

	runtimes := make([]string, 0, len(list.Devices))
	for key := range list.Devices {
		runtimes = append(runtimes, key)
	}
	sort.Strings(runtimes)

	for _, key := range runtimes {
		fmt.Fprintf(out, "== %s ==\n", key)
		for _, device := range list.Devices[key] {
			renderDeviceRow(out, device)
		}
	}
	fmt.Fprintf(out, "\n%d devices, updated %s\n", list.Count(), helpers.FormatAge(&list.LastUpdated))
	return nil
}

func listAvailableDevices(ctx context.Context, out io.Writer, container *app.Container, deviceType, runtime string, asJSON bool) error {
	devices, err := container.Devices.AvailableDevices(ctx, deviceType, runtime)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if asJSON {
		return helpers.PrintJSON(out, devices)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, MsgNoDevicesFound)
		return nil
	}
	for _, device := range devices {
		renderDeviceRow(out, device)
	}
	return nil
}

func renderDeviceRow(out io.Writer, d domain.Device) {
	availability := "available"
	if !d.IsAvailable {
		availability = "unavailable"
	}
	fmt.Fprintf(out, "%-28s %-36s %-10s %-11s last used %s\n",
		d.Name, d.UDID, d.State, availability, helpers.FormatAge(d.LastUsed))
	if d.PerformanceMetrics != nil {
		avg := d.PerformanceMetrics.AvgBootTime
		fmt.Fprintf(out, "    boots=%d avg=%s reliability=%s\n",
			len(d.BootHistory), helpers.FormatDuration(&avg), helpers.FormatPercent(d.PerformanceMetrics.Reliability))
	}
}

func displayDeviceStats(out io.Writer, stats domain.DeviceCacheStats) {
	fmt.Fprintf(out, "Cached: %t\n", stats.IsCached)
	fmt.Fprintf(out, "Last updated: %s\n", helpers.FormatAge(stats.LastUpdated))
	fmt.Fprintf(out, "Max age: %s\n", stats.MaxAge)
	fmt.Fprintf(out, "Devices: %d\n", stats.DeviceCount)
	fmt.Fprintf(out, "Recently used: %d\n", stats.RecentlyUsedCount)
	fmt.Fprintf(out, "Expired: %t\n", stats.IsExpired)
	fmt.Fprintf(out, "Expires in: %s\n", helpers.FormatDuration(stats.TimeUntilExpiry))
}
