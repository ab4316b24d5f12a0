package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopdesk/loopdesk/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running instance's lifecycle state",
	Run:   runStatus,
}

var statusAPIURL string

func init() {
	statusCmd.Flags().StringVar(&statusAPIURL, "api", "", "Control surface URL (default: http://127.0.0.1:<configured port>)")
}

func runStatus(cmd *cobra.Command, args []string) {
	client := tui.NewAPIClient(ResolveAPIURL(statusAPIURL))

	status, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot reach LoopDesk: %v\n", err)
		fmt.Fprintln(os.Stderr, "Is the instance running? Start it with: loopdesk serve")
		os.Exit(1)
	}

	fmt.Printf("State:      %s\n", status.State)
	fmt.Printf("Version:    %s\n", status.Version)
	fmt.Printf("PID:        %d\n", status.PID)
	fmt.Printf("Executable: %s\n", status.Executable)
	if !status.StartedAt.IsZero() {
		fmt.Printf("Uptime:     %s\n", time.Since(status.StartedAt).Round(time.Second))
	}
	if status.PendingArtifact != "" {
		fmt.Printf("Staged:     %s (awaiting confirmation)\n", status.PendingArtifact)
	}
	if status.LastUpdate != nil {
		outcome := "committed"
		if !status.LastUpdate.Committed {
			outcome = fmt.Sprintf("rolled back (%s)", status.LastUpdate.Error)
		}
		fmt.Printf("Last update: %s, %s\n", status.LastUpdate.Artifact, outcome)
	}
}
