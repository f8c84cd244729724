package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/metrics"
)

// Scanner performs batched concurrent TCP connect scans.
type Scanner struct {
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
}

// New creates a scanner. A nil logger falls back to the package default.
func New(logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scanner{
		logger:  logger.WithComponent("scanner"),
		metrics: metrics.GetGlobalMetrics(),
	}
}

// Scan probes the configured port set on host and returns the report.
// Ports are probed in batches of at most options.Parallelism concurrent
// probes; a batch completes before the next one starts. Closed ports are
// counted but not reported, timed-out probes are dropped entirely.
func (s *Scanner) Scan(ctx context.Context, host string, options Options) (*Report, error) {
	if err := options.Validate(); err != nil {
		return nil, &errors.ScanError{
			Code:    errors.CodeValidation,
			Message: "invalid scan options",
			Target:  host,
			Cause:   err,
		}
	}
	if host == "" {
		return nil, errors.ErrInvalidTarget(host)
	}

	ports := options.PortList()
	started := time.Now()
	s.metrics.AddActiveScans(1)
	defer s.metrics.AddActiveScans(-1)

	s.logger.Info("Starting port scan",
		"host", host,
		"ports", len(ports),
		"parallelism", options.Parallelism,
		"timeout", options.Timeout)

	var open []PortResult
	closedCount := 0

	for start := 0; start < len(ports); start += options.Parallelism {
		end := start + options.Parallelism
		if end > len(ports) {
			end = len(ports)
		}
		batch := ports[start:end]

		results := make(chan probeOutcome, len(batch))
		var wg sync.WaitGroup
		for _, port := range batch {
			wg.Add(1)
			go func(p uint16) {
				defer wg.Done()
				probeStart := time.Now()
				result, keep := probePort(ctx, host, p, options.Timeout)
				s.metrics.RecordProbeDuration(probeLabel(result, keep), time.Since(probeStart))
				results <- probeOutcome{result: result, keep: keep}
			}(port)
		}
		wg.Wait()
		close(results)

		for outcome := range results {
			s.metrics.IncrementProbes(probeLabel(outcome.result, outcome.keep))
			switch {
			case !outcome.keep:
			case outcome.result.Status == StatusOpen:
				open = append(open, outcome.result)
			default:
				closedCount++
			}
		}

		if ctx.Err() != nil {
			return nil, &errors.ScanError{
				Code:    errors.CodeCanceled,
				Message: "scan canceled",
				Target:  host,
				Cause:   ctx.Err(),
			}
		}
	}

	report := &Report{
		Host:     host,
		Ports:    open,
		Services: []ServiceInfo{},
	}
	s.enrich(ctx, report, options)

	duration := time.Since(started)
	s.metrics.IncrementScansTotal("internal", "completed")
	s.metrics.RecordScanDuration("internal", duration)
	s.logger.InfoScan("Port scan completed", host,
		"open", len(report.Ports),
		"closed", closedCount,
		"duration", duration)

	return report, nil
}

type probeOutcome struct {
	result PortResult
	keep   bool
}

// probeLabel maps a probe result to its metrics outcome label.
func probeLabel(result PortResult, keep bool) string {
	switch {
	case !keep:
		return "dropped"
	case result.Status == StatusOpen:
		return "open"
	default:
		return "closed"
	}
}

// enrich attaches service names, versions and an OS guess to the open
// ports of a freshly built report.
func (s *Scanner) enrich(ctx context.Context, report *Report, options Options) {
	for i := range report.Ports {
		port := &report.Ports[i]
		name, known := ServiceNameForPort(port.Port)
		if known {
			port.Service = name
		}
		if !options.VersionDetection {
			if known {
				report.Services = append(report.Services, ServiceInfo{Name: name})
			}
			continue
		}
		info, ok := Fingerprint(ctx, report.Host, port.Port, options.Timeout)
		if !ok {
			continue
		}
		if info.Name != "" {
			port.Service = info.Name
		}
		port.Version = info.Version
		report.Services = append(report.Services, info)
	}

	if options.OSDetection {
		if guess, ok := GuessOS(report.Ports); ok {
			report.OSGuess = guess
		}
	}
}
