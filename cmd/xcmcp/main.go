package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	opts := cli.Options{Verbose: isVerbose()}

	root, container, err := cli.NewRootCmd(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := container.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "warning: failed to flush state:", err)
		}
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func isVerbose() bool {
	return strings.EqualFold(os.Getenv("XC_MCP_DEBUG"), "1") || strings.EqualFold(os.Getenv("XC_MCP_DEBUG"), "true")
}
