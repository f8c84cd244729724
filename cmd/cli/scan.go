package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/nmap"
	"github.com/mkarlsen/devbay/internal/scanner"
)

var (
	scanHosts       string
	scanPorts       string
	scanOS          bool
	scanVersions    bool
	scanExternal    bool
	scanTimeout     time.Duration
	scanParallelism int
	scanJSON        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan hosts for listening services",
	Long: `Scan one or more hosts for open TCP ports. Without arguments the
built-in common-ports set is probed on localhost. With --external the
scan is delegated to nmap when it is installed.`,
	Example: `  devbay scan
  devbay scan --ports 3000,5173,8787
  devbay scan --hosts 192.168.1.10 --os --versions --external`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanHosts, "hosts", "", "comma-separated hosts (default localhost)")
	scanCmd.Flags().StringVar(&scanPorts, "ports", "", "comma-separated ports (default common ports)")
	scanCmd.Flags().BoolVar(&scanOS, "os", false, "enable OS detection")
	scanCmd.Flags().BoolVar(&scanVersions, "versions", false, "enable service version detection")
	scanCmd.Flags().BoolVar(&scanExternal, "external", false, "prefer the external nmap backend")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "per-port probe timeout")
	scanCmd.Flags().IntVar(&scanParallelism, "parallelism", 0, "max concurrent probes")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print reports as JSON")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	options := scanner.DefaultOptions()
	options.Timeout = cfg.Scanning.Timeout
	options.Parallelism = cfg.Scanning.Parallelism
	options.OSDetection = scanOS || cfg.Scanning.OSDetection
	options.VersionDetection = scanVersions || cfg.Scanning.VersionDetection

	if scanHosts != "" {
		options.Hosts = strings.Split(scanHosts, ",")
	}
	if scanPorts != "" {
		ports, err := parsePorts(scanPorts)
		if err != nil {
			return err
		}
		options.Ports = ports
	}
	if scanTimeout > 0 {
		options.Timeout = scanTimeout
	}
	if scanParallelism > 0 {
		options.Parallelism = scanParallelism
	}

	orch := scanner.NewOrchestrator(
		scanner.New(logging.Default()),
		nmap.NewRunner(logging.Default()),
		logging.Default(),
	)

	external := scanExternal || cfg.Scanning.PreferExternal
	started := time.Now()
	reports, err := orch.Scan(cmd.Context(), options, external)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanJSON {
		return json.NewEncoder(os.Stdout).Encode(reports)
	}
	for _, report := range reports {
		printReport(report)
	}
	fmt.Printf("\nScanned %d host(s) in %s\n", len(reports), time.Since(started).Round(time.Millisecond))
	return nil
}

func printReport(report *scanner.Report) {
	fmt.Printf("\nHost: %s", report.Host)
	if report.OSGuess != "" {
		fmt.Printf("  (OS guess: %s)", report.OSGuess)
	}
	fmt.Println()

	if len(report.Ports) == 0 {
		fmt.Println("  no open ports")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Port", "Status", "Service", "Version")
	for _, port := range report.Ports {
		_ = table.Append([]string{
			strconv.Itoa(int(port.Port)),
			string(port.Status),
			port.Service,
			port.Version,
		})
	}
	_ = table.Render()
}

// parsePorts parses a comma-separated port list.
func parsePorts(spec string) ([]uint16, error) {
	parts := strings.Split(spec, ",")
	ports := make([]uint16, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseUint(part, 10, 16)
		if err != nil || value == 0 {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		ports = append(ports, uint16(value))
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports in %q", spec)
	}
	return ports, nil
}
