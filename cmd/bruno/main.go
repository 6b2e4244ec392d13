package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// defaultConfigPath is used when --config is not given. A missing file falls
// back to environment variables.
const defaultConfigPath = "bruno.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bruno",
		Short:        "Bruno, a conversational assistant",
		Long:         "Bruno answers chat messages with a local language model and handles timers and notes.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to Bruno config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newLLMCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bruno %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
