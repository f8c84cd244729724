// Package scanner provides the concurrent TCP discovery pipeline for devbay.
// It contains the port prober, the batched parallel scanner, banner-based
// service fingerprinting, and the coarse OS guesser.
package scanner

import (
	"fmt"
	"time"
)

// PortStatus represents the classified outcome of a port probe.
type PortStatus string

const (
	StatusOpen     PortStatus = "open"
	StatusClosed   PortStatus = "closed"
	StatusFiltered PortStatus = "filtered"
)

// PortResult represents the scan result for a single port.
type PortResult struct {
	// Port is the probed port number
	Port uint16 `json:"port"`
	// Status is the classified probe outcome
	Status PortStatus `json:"status"`
	// Protocol is the transport protocol ("tcp")
	Protocol string `json:"protocol"`
	// Service is the identified service name, if any
	Service string `json:"service,omitempty"`
	// Version is the detected service version, if any
	Version string `json:"version,omitempty"`
}

// ServiceInfo describes a fingerprinted service.
type ServiceInfo struct {
	// Name is the service name
	Name string `json:"name"`
	// Version is the detected version, if any
	Version string `json:"version,omitempty"`
	// Info is the raw banner fragment the detection was based on
	Info string `json:"info,omitempty"`
}

// Report contains the results of scanning one host. Ports holds open
// ports only, in probe completion order.
type Report struct {
	Host     string        `json:"host"`
	Ports    []PortResult  `json:"ports"`
	OSGuess  string        `json:"os_guess,omitempty"`
	Services []ServiceInfo `json:"services"`
}

// Options configures a scan.
type Options struct {
	// Hosts to scan; defaults to localhost
	Hosts []string `json:"hosts,omitempty"`
	// Ports to probe; nil means the built-in common-ports table
	Ports []uint16 `json:"ports,omitempty"`
	// OSDetection enables the port-pattern OS guesser
	OSDetection bool `json:"os_detection"`
	// VersionDetection enables banner fingerprinting per open port
	VersionDetection bool `json:"version_detection"`
	// Timeout bounds each individual port probe
	Timeout time.Duration `json:"timeout"`
	// Parallelism caps concurrent probes per batch
	Parallelism int `json:"parallelism"`
}

// Defaults for scan options.
const (
	DefaultTimeout     = 200 * time.Millisecond
	DefaultParallelism = 100
)

// DefaultOptions returns scan options with defaults applied.
func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		Parallelism: DefaultParallelism,
	}
}

// Validate checks the option invariants.
func (o *Options) Validate() error {
	if o.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", o.Parallelism)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", o.Timeout)
	}
	return nil
}

// HostList resolves the target host list, defaulting to localhost.
func (o *Options) HostList() []string {
	if len(o.Hosts) == 0 {
		return []string{"127.0.0.1"}
	}
	return o.Hosts
}

// PortList resolves the port set, defaulting to the common-ports table.
func (o *Options) PortList() []uint16 {
	if len(o.Ports) == 0 {
		return CommonPorts()
	}
	return o.Ports
}

// commonPorts spans well-known service ports plus the usual
// development-server ports.
var commonPorts = []uint16{
	21,   // FTP
	22,   // SSH
	23,   // Telnet
	25,   // SMTP
	53,   // DNS
	80,   // HTTP
	110,  // POP3
	143,  // IMAP
	443,  // HTTPS
	3306, // MySQL
	3389, // RDP
	5432, // PostgreSQL
	3000, // Node.js dev
	3001, // Alternative Node.js
	5173, // Vite dev
	5174, // Alternative Vite
	8000, // Python dev
	8080, // Alternative HTTP
	8787, // devbay backend
	9000, // Alternative dev
}

// CommonPorts returns a copy of the default port set.
func CommonPorts() []uint16 {
	ports := make([]uint16, len(commonPorts))
	copy(ports, commonPorts)
	return ports
}

// serviceNames maps well-known ports to service names for the zero-cost
// static fingerprint used when version detection is disabled.
var serviceNames = map[uint16]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "dns",
	80:   "http",
	110:  "pop3",
	143:  "imap",
	443:  "https",
	3306: "mysql",
	3389: "rdp",
	5432: "postgresql",
	3000: "nodejs",
	5173: "vite",
	8000: "http-alt",
	8080: "http-proxy",
	8787: "devbay",
}

// ServiceNameForPort returns the static service name for a port, if known.
func ServiceNameForPort(port uint16) (string, bool) {
	name, ok := serviceNames[port]
	return name, ok
}
