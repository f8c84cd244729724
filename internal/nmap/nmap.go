// Package nmap shells out to the system nmap binary and adapts its XML
// output into the scanner's report model. It backs the orchestrator's
// external scan path.
package nmap

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/metrics"
	"github.com/mkarlsen/devbay/internal/scanner"
)

const toolName = "nmap"

// Runner executes nmap scans. It implements scanner.Delegate.
type Runner struct {
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics

	// binary overrides the executable path, used by tests
	binary string
}

// NewRunner creates a runner that locates nmap on PATH.
func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		logger:  logger.WithComponent("nmap"),
		metrics: metrics.GetGlobalMetrics(),
		binary:  toolName,
	}
}

// Available reports whether nmap can be executed. It runs
// `nmap --version` and requires a clean exit.
func (r *Runner) Available(ctx context.Context) bool {
	path, err := exec.LookPath(r.binary)
	if err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, path, "--version")
	return cmd.Run() == nil
}

// Scan runs nmap against host and returns the parsed report. Ports may
// be nil for nmap's own default port selection.
func (r *Runner) Scan(ctx context.Context, host string, ports []uint16, osDetection, versionDetection bool) (*scanner.Report, error) {
	args := buildArgs(host, ports, osDetection, versionDetection)

	started := time.Now()
	r.logger.Info("Running external scan", "host", host, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.metrics.IncrementScansTotal("external", "failed")
		toolErr := &errors.ToolError{
			Code:    errors.CodeSubprocess,
			Message: "nmap scan failed",
			Tool:    toolName,
			Cause:   err,
		}
		return nil, toolErr.WithStderr(stderr.String())
	}

	report, err := ParseXML(stdout.String(), host)
	if err != nil {
		r.metrics.IncrementScansTotal("external", "failed")
		return nil, err
	}

	duration := time.Since(started)
	r.metrics.IncrementScansTotal("external", "completed")
	r.metrics.RecordScanDuration("external", duration)
	r.logger.InfoScan("External scan completed", host,
		"open", len(report.Ports),
		"duration", duration)
	return report, nil
}

// buildArgs assembles the nmap argument list. XML goes to stdout and
// the aggressive timing template keeps interactive latency low.
func buildArgs(host string, ports []uint16, osDetection, versionDetection bool) []string {
	args := []string{host}
	if len(ports) > 0 {
		specs := make([]string, len(ports))
		for i, p := range ports {
			specs[i] = strconv.Itoa(int(p))
		}
		args = append(args, "-p", strings.Join(specs, ","))
	}
	if osDetection {
		args = append(args, "-O")
	}
	if versionDetection {
		args = append(args, "-sV")
	}
	return append(args, "-oX", "-", "-T4")
}
