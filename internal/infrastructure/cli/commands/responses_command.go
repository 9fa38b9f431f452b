package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/responsecache"
)

// NewResponsesCommand creates the responses command with all subcommands
func NewResponsesCommand(container *app.Container) *cobra.Command {
	responsesCmd := &cobra.Command{
		Use:   "responses",
		Short: "Store and retrieve large tool outputs",
	}

	responsesCmd.AddCommand(
		newResponsesStoreCommand(container),
		newResponsesGetCommand(container),
		newResponsesRecentCommand(container),
		newResponsesStatsCommand(container),
		newResponsesClearCommand(container),
	)

	return responsesCmd
}

func newResponsesStoreCommand(container *app.Container) *cobra.Command {
	var (
		tool       string
		file       string
		stderrFile string
		command    string
		exitCode   int
		lines      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Cache a tool output (from --file or stdin) and print its summary",
		Long: "Cache a tool output and print a summary with its id. The id can be read back by " +
			"later commands only while persistence is enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tool) == "" {
				return fmt.Errorf(ErrToolRequired)
			}
			output, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return fmt.Errorf("failed to read output: %w", err)
			}
			entry := domain.CachedResponse{
				Tool:       tool,
				FullOutput: output,
				ExitCode:   exitCode,
				Command:    command,
			}
			if stderrFile != "" {
				stderr, err := os.ReadFile(stderrFile)
				if err != nil {
					return fmt.Errorf("failed to read stderr: %w", err)
				}
				entry.Stderr = string(stderr)
			}
			entry.ID = container.Responses.Store(entry)

			if !container.Persistence.IsEnabled() {
				defer fmt.Fprintln(cmd.ErrOrStderr(), MsgResponseNotPersisted)
			}

			summary := responsecache.Summarize(entry, lines)
			out := cmd.OutOrStdout()
			if asJSON {
				return helpers.PrintJSON(out, summary)
			}
			displaySummary(out, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "Tool that produced the output")
	cmd.Flags().StringVar(&file, "file", "", "Read output from this file instead of stdin")
	cmd.Flags().StringVar(&stderrFile, "stderr-file", "", "Standard error captured alongside the output")
	cmd.Flags().StringVar(&command, "command", "", "Command line that produced the output")
	cmd.Flags().IntVar(&exitCode, "exit-code", 0, "Exit code of the command")
	cmd.Flags().IntVar(&lines, "lines", DefaultSummaryLines, "Lines to keep at each end of the summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newResponsesGetCommand(container *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print the full output of a cached response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := container.Responses.Lookup(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return helpers.PrintJSON(out, entry)
			}
			fmt.Fprint(out, entry.FullOutput)
			if entry.FullOutput != "" && !strings.HasSuffix(entry.FullOutput, "\n") {
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the whole entry as JSON")
	return cmd
}

func newResponsesRecentCommand(container *app.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent <tool>",
		Short: "List the newest cached responses of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf(ErrInvalidLimit)
			}
			entries := container.Responses.RecentByTool(args[0], limit)
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, MsgNoCachedResponses)
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  exit=%d  %s\n",
					e.ID, e.Timestamp.Format(time.DateTime), e.ExitCode, helpers.FormatBytes(int64(len(e.FullOutput))))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultRecentLimit, "Number of entries to list")
	return cmd
}

func newResponsesStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show response cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := container.Responses.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries: %d\n", stats.TotalEntries)
			for _, s := range helpers.CalculateTopTools(stats.ByTool, DefaultTopToolsLimit) {
				fmt.Fprintf(out, "  %-24s %d\n", s.Tool, s.Count)
			}
			return nil
		},
	}
}

func newResponsesClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached response",
		RunE: func(cmd *cobra.Command, args []string) error {
			container.Responses.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), MsgResponsesCleared)
			return nil
		},
	}
}

func readInput(stdin io.Reader, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		return string(data), err
	}
	data, err := io.ReadAll(stdin)
	return string(data), err
}

func displaySummary(out io.Writer, s domain.ResponseSummary) {
	fmt.Fprintf(out, "ID: %s\n", s.ID)
	fmt.Fprintf(out, "Tool: %s (exit %d)\n", s.Tool, s.ExitCode)
	fmt.Fprintf(out, "Size: %s, %d lines, %d errors, %d warnings\n",
		helpers.FormatBytes(int64(s.SizeBytes)), s.TotalLines, s.ErrorCount, s.WarningCount)
	if len(s.Head) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range s.Head {
		fmt.Fprintln(out, line)
	}
	if len(s.Tail) > 0 {
		fmt.Fprintf(out, "... %d lines omitted ...\n", s.TotalLines-len(s.Head)-len(s.Tail))
		for _, line := range s.Tail {
			fmt.Fprintln(out, line)
		}
	}
}
