package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loopdesk/loopdesk/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the terminal status dashboard",
	Long: `Launch an interactive terminal dashboard against the running instance.

The dashboard shows the lifecycle state, uptime and staged updates, and can
apply a staged update with confirmation.`,
	Run: runTUI,
}

var tuiAPIURL string

func init() {
	tuiCmd.Flags().StringVar(&tuiAPIURL, "api", "", "Control surface URL (default: http://127.0.0.1:<configured port>)")
}

func runTUI(cmd *cobra.Command, args []string) {
	if err := tui.Run(ResolveAPIURL(tuiAPIURL)); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
		os.Exit(1)
	}
}
