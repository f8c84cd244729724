package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarlsen/devbay/internal/process"
)

var tunnelPortFlag int

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Control the public localtunnel",
	Example: `  devbay tunnel start
  devbay tunnel start --port 3000
  devbay tunnel status
  devbay tunnel stop`,
}

var tunnelStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Expose the backend through localtunnel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var body any
		if tunnelPortFlag > 0 {
			body = map[string]int{"port": tunnelPortFlag}
		}
		var status process.Status
		if err := newAPIClient().call(cmd.Context(), "POST", "/api/v1/tunnel/start", body, &status); err != nil {
			return err
		}
		fmt.Printf("Tunnel started (pid %d), waiting for URL...\n", status.PID)
		fmt.Println("Run `devbay tunnel status` to see the assigned URL.")
		return nil
	},
}

var tunnelStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tunnel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newAPIClient().call(cmd.Context(), "POST", "/api/v1/tunnel/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Tunnel stopped")
		return nil
	},
}

var tunnelStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tunnel status and URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var status process.Status
		if err := newAPIClient().call(cmd.Context(), "GET", "/api/v1/tunnel/status", nil, &status); err != nil {
			return err
		}
		printProcessStatus(status)
		return nil
	},
}

func init() {
	tunnelStartCmd.Flags().IntVar(&tunnelPortFlag, "port", 0, "local port to expose (default: server port)")
	tunnelCmd.AddCommand(tunnelStartCmd, tunnelStopCmd, tunnelStatusCmd)
	rootCmd.AddCommand(tunnelCmd)
}
