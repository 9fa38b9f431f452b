package commands

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
	configinfra "github.com/ericvoltolin/xc-mcp/internal/infrastructure/config"
)

const (
	envKeyEditor  = "EDITOR"
	defaultEditor = "vi"
	keyColumn     = 28
)

// NewConfigCommand creates the config command with all subcommands
func NewConfigCommand(container *app.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change cache lifetimes, persistence and execution limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd, container, false)
		},
	}

	configCmd.AddCommand(
		newConfigShowCommand(container),
		newConfigKeysCommand(),
		newConfigGetCommand(container),
		newConfigSetCommand(container),
		newConfigUnsetCommand(container),
		newConfigEditCommand(container),
		newConfigValidateCommand(container),
		newConfigResetCommand(container),
		newConfigDiffCommand(container),
		newConfigPathCommand(container),
	)

	return configCmd
}

func newConfigShowCommand(container *app.Container) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective value of every key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd, container, raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "yaml", false, "Print the config file as stored")
	return cmd
}

func newConfigKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List settable keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range configinfra.Keys() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-*s %s\n", keyColumn, k.Name, k.Description)
			}
			return nil
		},
	}
}

func newConfigGetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := configinfra.LookupKey(args[0])
			if err != nil {
				return err
			}
			cfg, err := container.ConfigProvider.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Value(cfg))
			return nil
		},
	}
}

func newConfigSetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Parse, validate and store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateKey(cmd, container, args[0], func(key configinfra.Key, cfg *domain.Config) error {
				return key.Apply(cfg, args[1])
			})
		},
	}
}

func newConfigUnsetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Restore the default value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateKey(cmd, container, args[0], func(key configinfra.Key, cfg *domain.Config) error {
				return key.Reset(cfg)
			})
		},
	}
}

func newConfigEditCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit configuration in $EDITOR, then validate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := helpers.GetConfigLoader(container)
			if err != nil {
				return err
			}
			editor := editorCommand()
			run := exec.CommandContext(cmd.Context(), editor, loader.Path())
			run.Stdin = os.Stdin
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("failed to run editor %s: %w", editor, err)
			}
			if _, err := container.ConfigProvider.Load(cmd.Context()); err != nil {
				return fmt.Errorf("edited configuration is invalid: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgConfigurationValid)
			return nil
		},
	}
}

func newConfigValidateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := container.ConfigProvider.Load(cmd.Context()); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgConfigurationValid)
			return nil
		},
	}
}

func newConfigResetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Back up the config file and restore defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			backup, err := helpers.SaveConfig(container, configinfra.DefaultConfig())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if backup != "" {
				fmt.Fprintf(out, "Previous configuration saved to %s\n", backup)
			}
			fmt.Fprintln(out, "Configuration reset to defaults.")
			return nil
		},
	}
}

func newConfigDiffCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show keys whose effective value differs from the default",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := container.ConfigProvider.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			changes := configinfra.Diff(configinfra.DefaultConfig(), cfg)
			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(out, MsgNoDifferencesFromDefault)
				return nil
			}
			for _, c := range changes {
				fmt.Fprintf(out, "%-*s %s -> %s\n", keyColumn, c.Key, displayValue(c.From), displayValue(c.To))
			}
			return nil
		},
	}
}

func newConfigPathCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := helpers.GetConfigLoader(container)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loader.Path())
			return nil
		},
	}
}

func showConfiguration(cmd *cobra.Command, container *app.Container, raw bool) error {
	out := cmd.OutOrStdout()
	if raw {
		loader, err := helpers.GetConfigLoader(container)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(loader.Path())
		if err != nil {
			return fmt.Errorf("failed to read configuration: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	cfg, err := container.ConfigProvider.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	printEffective(out, cfg)
	return nil
}

func printEffective(out io.Writer, cfg domain.Config) {
	for _, k := range configinfra.Keys() {
		fmt.Fprintf(out, "%-*s %s\n", keyColumn, k.Name, displayValue(k.Value(cfg)))
	}
}

// updateKey loads the config, applies change to one key, saves with a backup
// and pushes the new value into the running caches where it can take effect.
func updateKey(cmd *cobra.Command, container *app.Container, name string, change func(configinfra.Key, *domain.Config) error) error {
	key, err := configinfra.LookupKey(name)
	if err != nil {
		return err
	}
	cfg, err := container.ConfigProvider.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := change(key, &cfg); err != nil {
		return err
	}
	if _, err := helpers.SaveConfig(container, cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s = %s\n", key.Name, displayValue(key.Value(cfg)))
	applied, err := applyLive(container, key.Name, cfg)
	if err != nil {
		return err
	}
	if !applied {
		fmt.Fprintln(out, "Takes effect on the next run.")
	}
	return nil
}

// applyLive updates settings the caches can change without a rebuild.
func applyLive(container *app.Container, name string, cfg domain.Config) (bool, error) {
	switch name {
	case "cache.device_max_age":
		d, err := cfg.DeviceMaxAge()
		if err != nil {
			return false, err
		}
		return true, container.Devices.SetMaxAge(d)
	}
	return false, nil
}

func displayValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(default)"
	}
	return v
}

func editorCommand() string {
	if editor := os.Getenv(envKeyEditor); editor != "" {
		return editor
	}
	return defaultEditor
}
