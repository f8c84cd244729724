package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/vpn"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Tailscale remote access",
	Example: `  devbay remote status
  devbay remote serve start
  devbay remote serve stop`,
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tailscale node status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := vpn.NewClient(logging.Default()).Status(cmd.Context())
		if err != nil {
			return err
		}
		if !status.Installed {
			fmt.Println("tailscale: not installed")
			return nil
		}
		fmt.Printf("tailscale: %s\n", status.BackendState)
		if status.AuthURL != "" {
			fmt.Printf("login required: %s\n", status.AuthURL)
		}
		if status.HostName != "" {
			fmt.Printf("host: %s (%s)\n", status.HostName, status.DNSName)
		}
		if len(status.IPs) > 0 {
			fmt.Printf("ips: %s\n", strings.Join(status.IPs, ", "))
		}
		return nil
	},
}

var remoteServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish the backend over tailscale serve",
}

var remoteServeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start serving the backend on the tailnet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		target := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		port, err := vpn.NewClient(logging.Default()).ServeStart(cmd.Context(), target)
		if err != nil {
			return err
		}
		fmt.Printf("Serving %s on tailnet HTTPS port %d\n", target, port)
		return nil
	},
}

var remoteServeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop serving on the tailnet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := vpn.NewClient(logging.Default()).ServeStop(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Tailscale serve stopped")
		return nil
	},
}

var remoteServeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current serve configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := vpn.NewClient(logging.Default()).ServeStatus(cmd.Context())
		if err != nil {
			return err
		}
		if url := vpn.ServeURL(out); url != "" {
			fmt.Printf("serving at: %s\n", url)
		}
		fmt.Println(strings.TrimSpace(out))
		return nil
	},
}

func init() {
	remoteServeCmd.AddCommand(remoteServeStartCmd, remoteServeStopCmd, remoteServeStatusCmd)
	remoteCmd.AddCommand(remoteStatusCmd, remoteServeCmd)
	rootCmd.AddCommand(remoteCmd)
}
