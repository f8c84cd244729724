// Package scheduler runs devbay's periodic background jobs: refreshing
// the cached localhost scan and checking that the managed server still
// answers on its port.
package scheduler

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/process"
	"github.com/mkarlsen/devbay/internal/scanner"
)

// healthDialTimeout bounds each liveness probe.
const healthDialTimeout = 2 * time.Second

// Scheduler owns the cron runner and the latest cached scan.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *scanner.Orchestrator
	supervisor   *process.Supervisor
	serverPort   uint16
	logger       *logging.Logger

	mu         sync.RWMutex
	lastScan   []*scanner.Report
	lastScanAt time.Time
	running    bool
}

// New creates a scheduler around the orchestrator and supervisor.
func New(orchestrator *scanner.Orchestrator, supervisor *process.Supervisor, serverPort uint16, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		cron:         cron.New(),
		orchestrator: orchestrator,
		supervisor:   supervisor,
		serverPort:   serverPort,
		logger:       logger.WithComponent("scheduler"),
	}
}

// Start registers the jobs and begins the cron loop. Schedules use
// cron syntax including the @every shorthand.
func (s *Scheduler) Start(scanSchedule, healthSchedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if scanSchedule != "" {
		if _, err := s.cron.AddFunc(scanSchedule, s.refreshScan); err != nil {
			return err
		}
	}
	if healthSchedule != "" {
		if _, err := s.cron.AddFunc(healthSchedule, s.checkServerHealth); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started",
		"scan_schedule", scanSchedule,
		"health_schedule", healthSchedule)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// refreshScan re-runs the default localhost scan and caches the result.
func (s *Scheduler) refreshScan() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	options := scanner.DefaultOptions()
	reports, err := s.orchestrator.Scan(ctx, options, false)
	if err != nil {
		s.logger.Error("Scheduled scan failed", "error", err)
		return
	}

	s.mu.Lock()
	s.lastScan = reports
	s.lastScanAt = time.Now()
	s.mu.Unlock()
	s.logger.Debug("Scheduled scan refreshed", "hosts", len(reports))
}

// checkServerHealth verifies the supervised server still accepts
// connections on its port. A dead port with a live slot is worth a
// warning; actual restarts stay a human decision.
func (s *Scheduler) checkServerHealth() {
	status := s.supervisor.Status(process.KindServer)
	if !status.Running {
		return
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(s.serverPort)))
	conn, err := net.DialTimeout("tcp", addr, healthDialTimeout)
	if err != nil {
		s.logger.Warn("Managed server not answering on its port",
			"pid", status.PID,
			"port", s.serverPort,
			"error", err)
		return
	}
	conn.Close()
}

// LastScan returns the most recent cached scan and its timestamp.
func (s *Scheduler) LastScan() ([]*scanner.Report, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScan, s.lastScanAt
}
