package nmap

import (
	"strconv"
	"strings"

	"github.com/mkarlsen/devbay/internal/scanner"
)

// ParseXML converts nmap XML output into a scan report. The parser is
// deliberately line-oriented: it survives truncated or partially
// malformed output and never fails on unknown elements. An empty
// payload yields an empty report.
func ParseXML(output, host string) (*scanner.Report, error) {
	report := &scanner.Report{
		Host:     host,
		Ports:    []scanner.PortResult{},
		Services: []scanner.ServiceInfo{},
	}

	var current *scanner.PortResult
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.Contains(line, "<address "):
			if addr := extractAttr(line, "addr"); addr != "" && extractAttr(line, "addrtype") != "mac" {
				report.Host = addr
			}
		case strings.Contains(line, "<port "):
			current = parsePortLine(line, report)
		case strings.Contains(line, "<state "):
			if current != nil {
				current.Status = parseState(extractAttr(line, "state"))
			}
		case strings.Contains(line, "<service "):
			if current != nil {
				applyService(line, current, report)
			}
		case strings.Contains(line, "</port>"):
			current = nil
		case strings.Contains(line, "<osmatch "):
			if report.OSGuess == "" {
				report.OSGuess = extractAttr(line, "name")
			}
		}
	}

	// Keep only ports that carry signal.
	filtered := report.Ports[:0]
	for _, p := range report.Ports {
		if p.Status == scanner.StatusOpen || p.Status == scanner.StatusFiltered {
			filtered = append(filtered, p)
		}
	}
	report.Ports = filtered
	return report, nil
}

// parsePortLine appends a port entry and processes any state and
// service attributes that share the line, which is how nmap usually
// emits them.
func parsePortLine(line string, report *scanner.Report) *scanner.PortResult {
	portID, err := strconv.ParseUint(extractAttr(line, "portid"), 10, 16)
	if err != nil {
		return nil
	}
	protocol := extractAttr(line, "protocol")
	if protocol == "" {
		protocol = "tcp"
	}
	report.Ports = append(report.Ports, scanner.PortResult{
		Port:     uint16(portID),
		Protocol: protocol,
	})
	current := &report.Ports[len(report.Ports)-1]

	if strings.Contains(line, "<state ") {
		if idx := strings.Index(line, "<state "); idx >= 0 {
			current.Status = parseState(extractAttr(line[idx:], "state"))
		}
	}
	if idx := strings.Index(line, "<service "); idx >= 0 {
		applyService(line[idx:], current, report)
	}
	return current
}

func applyService(line string, port *scanner.PortResult, report *scanner.Report) {
	name := extractAttr(line, "name")
	version := extractAttr(line, "version")
	product := extractAttr(line, "product")
	if name == "" && version == "" && product == "" {
		return
	}
	port.Service = name
	port.Version = version
	// The product string is the better display name when nmap has one.
	display := product
	if display == "" {
		display = name
	}
	report.Services = append(report.Services, scanner.ServiceInfo{
		Name:    display,
		Version: version,
		Info:    name,
	})
}

func parseState(state string) scanner.PortStatus {
	switch state {
	case "open":
		return scanner.StatusOpen
	case "closed":
		return scanner.StatusClosed
	default:
		return scanner.StatusFiltered
	}
}

// extractAttr pulls the value of attr="..." out of a line, returning
// the empty string when the attribute is absent.
func extractAttr(line, attr string) string {
	marker := attr + `="`
	start := strings.Index(line, marker)
	if start < 0 {
		return ""
	}
	rest := line[start+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
