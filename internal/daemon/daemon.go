// Package daemon wires devbay's components together and runs them as a
// long-lived background service: the process supervisor, the scan
// orchestrator, the HTTP control API and the job scheduler.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mkarlsen/devbay/internal/api"
	"github.com/mkarlsen/devbay/internal/config"
	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/metrics"
	"github.com/mkarlsen/devbay/internal/nmap"
	"github.com/mkarlsen/devbay/internal/process"
	"github.com/mkarlsen/devbay/internal/scanner"
	"github.com/mkarlsen/devbay/internal/scheduler"
	"github.com/mkarlsen/devbay/internal/vpn"
)

const pidFilePermissions = 0o644

// Daemon owns every long-lived component.
type Daemon struct {
	config       *config.Config
	configPath   string
	supervisor   *process.Supervisor
	orchestrator *scanner.Orchestrator
	apiServer    *api.Server
	scheduler    *scheduler.Scheduler
	vpnClient    *vpn.Client
	logger       *logging.Logger
	pidFile      string
}

// New builds a daemon from configuration. configPath is remembered for
// SIGHUP reloads and may be empty.
func New(cfg *config.Config, configPath string) *Daemon {
	logger := logging.Default().WithComponent("daemon")

	sup := process.NewSupervisor(logging.Default())
	scan := scanner.New(logging.Default())
	orch := scanner.NewOrchestrator(scan, nmap.NewRunner(logging.Default()), logging.Default())
	vpnClient := vpn.NewClient(logging.Default())

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		supervisor:   sup,
		orchestrator: orch,
		vpnClient:    vpnClient,
		logger:       logger,
		pidFile:      cfg.Shell.PIDFile,
	}
	if cfg.Scheduler.Enabled {
		d.scheduler = scheduler.New(orch, sup, uint16(cfg.Server.Port), logging.Default())
	}
	if cfg.IsAPIEnabled() {
		var cache api.ScanCache
		if d.scheduler != nil {
			cache = d.scheduler
		}
		d.apiServer = api.New(cfg, orch, sup, vpnClient, cache)
	}
	return d
}

// Run starts everything and blocks until a shutdown signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquirePIDFile(); err != nil {
		return err
	}
	defer d.releasePIDFile()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.GetGlobalMetrics().StartPeriodicUpdates(ctx, 15*time.Second)

	apiErr := make(chan error, 1)
	if d.apiServer != nil {
		go func() {
			apiErr <- d.apiServer.Start(ctx)
		}()
	}

	if d.scheduler != nil {
		if err := d.scheduler.Start(d.config.Scheduler.ScanSchedule, d.config.Scheduler.HealthSchedule); err != nil {
			// The API server may already be accepting requests; tear
			// everything down so no supervised process outlives us.
			_ = d.shutdown(cancel)
			return fmt.Errorf("scheduler start failed: %w", err)
		}
	}

	d.logger.Info("Daemon started",
		"pid", os.Getpid(),
		"api_enabled", d.apiServer != nil,
		"scheduler_enabled", d.scheduler != nil)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			switch sig {
			case syscall.SIGHUP:
				d.reloadConfig()
			case syscall.SIGUSR1:
				d.dumpStatus()
			default:
				d.logger.Info("Shutdown signal received", "signal", sig.String())
				return d.shutdown(cancel)
			}
		case err := <-apiErr:
			if err != nil {
				d.logger.Error("API server exited", "error", err)
				_ = d.shutdown(cancel)
				return err
			}
		case <-ctx.Done():
			return d.shutdown(cancel)
		}
	}
}

// shutdown stops components in reverse start order and kills every
// supervised process before returning.
func (d *Daemon) shutdown(cancel context.CancelFunc) error {
	timeout := d.config.Shell.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, done := context.WithTimeout(context.Background(), timeout)
	defer done()

	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	cancel()
	if d.apiServer != nil {
		_ = d.apiServer.Stop()
	}
	d.supervisor.Shutdown(ctx)
	d.logger.Info("Daemon stopped")
	return nil
}

// reloadConfig re-reads the config file. Only scanning and scheduler
// settings take effect without a restart; listener addresses need one.
func (d *Daemon) reloadConfig() {
	if d.configPath == "" {
		d.logger.Warn("SIGHUP received but no config file to reload")
		return
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		d.logger.Error("Config reload failed", "path", d.configPath, "error", err)
		return
	}
	d.config.Scanning = cfg.Scanning
	d.config.Scheduler = cfg.Scheduler
	d.config.Server = cfg.Server
	d.config.Tunnel = cfg.Tunnel
	d.logger.Info("Configuration reloaded", "path", d.configPath)
}

// dumpStatus logs a one-shot status snapshot.
func (d *Daemon) dumpStatus() {
	server := d.supervisor.Status(process.KindServer)
	tunnel := d.supervisor.Status(process.KindTunnel)
	d.logger.Info("Status dump",
		"uptime", metrics.GetGlobalMetrics().GetUptime().Round(time.Second),
		"server_running", server.Running,
		"server_pid", server.PID,
		"tunnel_running", tunnel.Running,
		"tunnel_url", tunnel.URL)
}

// acquirePIDFile enforces the single-instance guard. A stale file left
// by a dead process is removed and replaced.
func (d *Daemon) acquirePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if data, err := os.ReadFile(d.pidFile); err == nil {
		if pid, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && processAlive(pid) {
			return fmt.Errorf("daemon already running with PID %d", pid)
		}
		_ = os.Remove(d.pidFile)
	}

	if dir := filepath.Dir(d.pidFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID file directory: %w", err)
		}
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(d.pidFile, []byte(pid), pidFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	d.logger.Debug("PID file created", "path", d.pidFile, "pid", pid)
	return nil
}

func (d *Daemon) releasePIDFile() {
	if d.pidFile == "" {
		return
	}
	_ = os.Remove(d.pidFile)
}

// processAlive reports whether pid names a live process we can signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Supervisor exposes the process supervisor for the CLI's direct mode.
func (d *Daemon) Supervisor() *process.Supervisor {
	return d.supervisor
}

// Orchestrator exposes the scan orchestrator.
func (d *Daemon) Orchestrator() *scanner.Orchestrator {
	return d.orchestrator
}
