package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mkarlsen/devbay/internal/process"
	"github.com/mkarlsen/devbay/internal/tools"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the daemon and its processes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newAPIClient()

		var health struct {
			Status string `json:"status"`
			Uptime string `json:"uptime"`
		}
		if err := client.call(cmd.Context(), "GET", "/api/v1/health", nil, &health); err != nil {
			fmt.Println("daemon: not running")
			return nil
		}
		fmt.Printf("daemon: %s (uptime %s)\n", health.Status, health.Uptime)

		var server, tunnel process.Status
		if err := client.call(cmd.Context(), "GET", "/api/v1/server/status", nil, &server); err == nil {
			printProcessStatus(server)
		}
		if err := client.call(cmd.Context(), "GET", "/api/v1/tunnel/status", nil, &tunnel); err == nil {
			printProcessStatus(tunnel)
		}
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Check the development toolchain",
	Long:  `Check which of the tools devbay depends on are installed: node, npm, pnpm and nmap.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := tools.CheckEnvironment(cmd.Context())

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Tool", "Available", "Version", "Path")
		for _, info := range []tools.Info{env.Node, env.NPM, env.PNPM, env.Nmap} {
			available := "no"
			if info.Available {
				available = "yes"
			}
			_ = table.Append([]string{info.Name, available, info.Version, info.Path})
		}
		_ = table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, envCmd)
}
