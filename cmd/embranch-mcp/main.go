// Command embranch-mcp is the Embranch MCP server binary: a root
// cobra command wiring persistent flags and subcommands for the
// long-running tool-call loop (serve) plus operational tasks (init,
// sync, doctor), in the style of the teacher's bd root command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagRepo     string
	flagLogLevel string
	flagConfig   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "embranch-mcp",
		Short: "Embranch MCP server: a versioned document-and-embedding store",
	}

	root.PersistentFlags().StringVar(&flagRepo, "repo", "", "path to the Dolt repository root (default: current directory)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.yaml")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newSyncCmd(),
		newDoctorCmd(),
	)
	return root
}
