package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarlsen/devbay/internal/process"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Control the managed backend server",
	Example: `  devbay server start
  devbay server stop
  devbay server status`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the backend server through the daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var status process.Status
		if err := newAPIClient().call(cmd.Context(), "POST", "/api/v1/server/start", nil, &status); err != nil {
			return err
		}
		fmt.Printf("Server started (pid %d)\n", status.PID)
		return nil
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the backend server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newAPIClient().call(cmd.Context(), "POST", "/api/v1/server/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Server stopped")
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend server status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var status process.Status
		if err := newAPIClient().call(cmd.Context(), "GET", "/api/v1/server/status", nil, &status); err != nil {
			return err
		}
		printProcessStatus(status)
		return nil
	},
}

func init() {
	serverCmd.AddCommand(serverStartCmd, serverStopCmd, serverStatusCmd)
	rootCmd.AddCommand(serverCmd)
}

func printProcessStatus(status process.Status) {
	if !status.Running {
		fmt.Printf("%s: not running\n", status.Kind)
		return
	}
	fmt.Printf("%s: running (pid %d)", status.Kind, status.PID)
	if status.URL != "" {
		fmt.Printf("  %s", status.URL)
	}
	fmt.Println()
	if status.Password != "" {
		fmt.Printf("tunnel password: %s\n", status.Password)
	}
}
