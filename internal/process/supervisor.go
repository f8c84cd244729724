package process

import (
	"context"
	"os/exec"
	"sync"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/metrics"
)

// Status describes a supervised slot.
type Status struct {
	Kind     Kind   `json:"kind"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
}

// Supervisor holds one slot per process kind. At most one live process
// occupies a slot; starting into an occupied slot is a conflict, not a
// restart.
type Supervisor struct {
	mu    sync.Mutex
	slots map[Kind]*Handle

	tunnelMu       sync.Mutex
	tunnelURL      string
	tunnelPassword string
	output         *OutputBuffer

	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Supervisor{
		slots:   make(map[Kind]*Handle),
		output:  NewOutputBuffer(),
		logger:  logger.WithComponent("supervisor"),
		metrics: metrics.GetGlobalMetrics(),
	}
}

// Start spawns cmd into the slot for kind. A slot holding a live
// process rejects the start; a slot holding an exited process is
// reclaimed first.
func (s *Supervisor) Start(kind Kind, cmd *exec.Cmd) (*Handle, error) {
	s.mu.Lock()
	if existing := s.slots[kind]; existing != nil && existing.Running() {
		s.mu.Unlock()
		s.metrics.IncrementProcessConflicts(string(kind))
		return nil, errors.ErrAlreadyRunning(string(kind))
	}

	handle, err := start(kind, cmd)
	if err != nil {
		s.mu.Unlock()
		s.metrics.IncrementProcessStarts(string(kind), "failed")
		return nil, err
	}
	s.slots[kind] = handle
	s.mu.Unlock()

	s.metrics.IncrementProcessStarts(string(kind), "started")
	s.metrics.SetProcessRunning(string(kind), true)
	s.logger.InfoProcess("Process started", string(kind), "pid", handle.PID())
	return handle, nil
}

// Stop takes the handle out of its slot and kills it. The slot is freed
// before the kill so a concurrent Start never races against a dying
// process.
func (s *Supervisor) Stop(ctx context.Context, kind Kind) error {
	s.mu.Lock()
	handle := s.slots[kind]
	delete(s.slots, kind)
	s.mu.Unlock()

	if handle == nil {
		return errors.ErrNotRunning(string(kind))
	}
	if kind == KindTunnel {
		s.setTunnelInfo("", "")
	}

	err := handle.Stop(ctx)
	status := "stopped"
	if err != nil {
		status = "failed"
	}
	s.metrics.IncrementProcessStops(string(kind), status)
	s.metrics.SetProcessRunning(string(kind), false)
	if err != nil {
		s.logger.ErrorProcess("Process stop failed", string(kind), err, "pid", handle.PID())
		return err
	}
	s.logger.InfoProcess("Process stopped", string(kind), "pid", handle.PID())
	return nil
}

// Status reports on the slot for kind.
func (s *Supervisor) Status(kind Kind) Status {
	s.mu.Lock()
	handle := s.slots[kind]
	s.mu.Unlock()

	status := Status{Kind: kind}
	if handle != nil && handle.Running() {
		status.Running = true
		status.PID = handle.PID()
	}
	if kind == KindTunnel && status.Running {
		status.URL, status.Password = s.TunnelInfo()
	}
	return status
}

// Shutdown stops every supervised process. Errors are logged, not
// returned, so one stubborn child does not block the rest.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.slots))
	for kind, handle := range s.slots {
		handles = append(handles, handle)
		delete(s.slots, kind)
	}
	s.mu.Unlock()

	for _, handle := range handles {
		if err := handle.Stop(ctx); err != nil {
			s.logger.ErrorProcess("Shutdown kill failed", string(handle.Kind()), err)
		}
		s.metrics.SetProcessRunning(string(handle.Kind()), false)
	}
	s.setTunnelInfo("", "")
	s.logger.Info("All supervised processes stopped", "count", len(handles))
}

// TunnelURL returns the last URL announced by the tunnel client.
func (s *Supervisor) TunnelURL() string {
	url, _ := s.TunnelInfo()
	return url
}

// TunnelInfo returns a snapshot of the captured URL and password.
func (s *Supervisor) TunnelInfo() (url, password string) {
	s.tunnelMu.Lock()
	defer s.tunnelMu.Unlock()
	return s.tunnelURL, s.tunnelPassword
}

func (s *Supervisor) setTunnelURL(url string) {
	s.tunnelMu.Lock()
	s.tunnelURL = url
	s.tunnelMu.Unlock()
}

func (s *Supervisor) setTunnelPassword(password string) {
	s.tunnelMu.Lock()
	s.tunnelPassword = password
	s.tunnelMu.Unlock()
}

func (s *Supervisor) setTunnelInfo(url, password string) {
	s.tunnelMu.Lock()
	s.tunnelURL = url
	s.tunnelPassword = password
	s.tunnelMu.Unlock()
}

// TunnelOutput exposes the tunnel client's output stream.
func (s *Supervisor) TunnelOutput() *OutputBuffer {
	return s.output
}
