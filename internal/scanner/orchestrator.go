package scanner

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkarlsen/devbay/internal/logging"
)

// Delegate is an external scan backend, typically an nmap wrapper.
type Delegate interface {
	// Available reports whether the backend can be used right now.
	Available(ctx context.Context) bool
	// Scan runs an external scan of host over ports and returns a report
	// in the scanner's model.
	Scan(ctx context.Context, host string, ports []uint16, osDetection, versionDetection bool) (*Report, error)
}

// Orchestrator routes scan requests between the internal scanner and an
// optional external delegate.
type Orchestrator struct {
	scanner  *Scanner
	delegate Delegate
	logger   *logging.Logger
}

// NewOrchestrator creates an orchestrator. The delegate may be nil, in
// which case all scans run internally.
func NewOrchestrator(scanner *Scanner, delegate Delegate, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		scanner:  scanner,
		delegate: delegate,
		logger:   logger.WithComponent("orchestrator"),
	}
}

// Scan runs the configured scan across all target hosts and returns one
// report per host. The external delegate serves the scan only when
// preferExternal is set and the delegate reports itself available. Once
// a backend is chosen its failures are the call's failures; callers
// never learn which backend ran a successful scan.
func (o *Orchestrator) Scan(ctx context.Context, options Options, preferExternal bool) ([]*Report, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	scanID := uuid.New().String()
	useDelegate := preferExternal && o.delegate != nil && o.delegate.Available(ctx)
	o.logger.Info("Starting scan",
		"scan_id", scanID,
		"hosts", len(options.HostList()),
		"external", useDelegate)

	reports := make([]*Report, 0, len(options.HostList()))
	for _, host := range options.HostList() {
		var report *Report
		var err error
		if useDelegate {
			report, err = o.delegate.Scan(ctx, host, options.Ports, options.OSDetection, options.VersionDetection)
		} else {
			report, err = o.scanner.Scan(ctx, host, options)
		}
		if err != nil {
			o.logger.Error("Scan failed", "scan_id", scanID, "host", host, "error", err)
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
