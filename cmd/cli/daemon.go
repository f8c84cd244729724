package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mkarlsen/devbay/internal/daemon"
)

var daemonPIDFile string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the devbay daemon",
	Long: `Run devbay as a foreground daemon. The daemon supervises the
backend server and tunnel, serves the local control API, and runs the
scheduled background jobs. Send SIGTERM or SIGINT to stop it, SIGHUP to
reload the config file, SIGUSR1 to log a status snapshot.`,
	Example: `  devbay daemon
  devbay daemon --pid-file /tmp/devbay.pid`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonPIDFile, "pid-file", "", "PID file for the single-instance guard")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if daemonPIDFile != "" {
		cfg.Shell.PIDFile = daemonPIDFile
	}

	d := daemon.New(cfg, viper.ConfigFileUsed())
	if err := d.Run(cmd.Context()); err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}
