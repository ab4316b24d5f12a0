package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loopdesk",
	Short: "Desktop companion with a loopback web UI and self-updates",
	Long: `LoopDesk - long-running desktop companion served over loopback HTTP

One instance per user at a time: startup acquires an instance lock,
recovers stale locks from crashed runs, and hands over from a prior
instance gracefully. Updates are staged as complete binaries and applied
atomically with automatic rollback, then the instance restarts itself.

Examples:
  loopdesk serve                 # Start the instance (default)
  loopdesk status                # Show the running instance's state
  loopdesk tui                   # Terminal status dashboard
  loopdesk version               # Show version`,
	Version: version,
	// Default to serve when no subcommand is given
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}
