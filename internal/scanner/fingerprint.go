package scanner

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// httpPorts are ports probed with an HTTP request instead of passive
// banner reading.
var httpPorts = map[uint16]bool{
	80:   true,
	3000: true,
	5173: true,
	8000: true,
	8080: true,
	8787: true,
}

// maxBannerBytes bounds how much of a banner or response we read.
const maxBannerBytes = 4096

// Fingerprint connects to an open port and attempts to identify the
// service and its version from the banner. HTTP-family ports get an
// active HTTP request, everything else a passive banner read. A probe
// that yields no usable banner returns ok=false.
func Fingerprint(ctx context.Context, host string, port uint16, timeout time.Duration) (ServiceInfo, bool) {
	dialer := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ServiceInfo{}, false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	var banner string
	if httpPorts[port] {
		banner = readHTTPBanner(conn, host)
	} else {
		banner = readBanner(conn)
	}
	if banner == "" {
		return ServiceInfo{}, false
	}

	info := ServiceInfo{Info: firstLine(banner)}
	if name, ok := ServiceNameForPort(port); ok {
		info.Name = name
	}
	info.Version = parseVersion(banner)
	return info, true
}

// readHTTPBanner issues a minimal HTTP request and returns the response
// head. The Server header, when present, is what version parsing keys on.
func readHTTPBanner(conn net.Conn, host string) string {
	request := fmt.Sprintf("HEAD / HTTP/1.0\r\nHost: %s\r\n\r\n", host)
	if _, err := conn.Write([]byte(request)); err != nil {
		return ""
	}
	return readBanner(conn)
}

// readBanner reads whatever the peer sends, up to maxBannerBytes.
func readBanner(conn net.Conn) string {
	buf := make([]byte, maxBannerBytes)
	reader := bufio.NewReader(conn)
	n, _ := reader.Read(buf)
	return strings.TrimSpace(string(buf[:n]))
}

// versionMarkers precede version strings in common banners, checked in
// order.
var versionMarkers = []string{"Server: ", "version ", " v", "/"}

// parseVersion scans a banner line by line for a version-like token
// following one of the markers: digits and dots, at most two dots.
// Banners with a Server header but no numeric version fall back to the
// full header value.
func parseVersion(banner string) string {
	for _, line := range strings.Split(banner, "\n") {
		line = strings.TrimRight(line, "\r")
		for _, marker := range versionMarkers {
			idx := strings.Index(line, marker)
			if idx < 0 {
				continue
			}
			if v := versionRun(line[idx+len(marker):]); v != "" {
				return v
			}
		}
	}
	if idx := strings.Index(banner, "Server:"); idx >= 0 {
		return strings.TrimSpace(firstLine(banner[idx+len("Server:"):]))
	}
	return ""
}

// versionRun extracts the digits-and-dots run at the start of s,
// rejecting runs with more than two dot separators.
func versionRun(s string) string {
	end := 0
	dots := 0
	for end < len(s) {
		c := s[end]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		end++
	}
	run := strings.TrimRight(s[:end], ".")
	if run == "" || dots > 2 {
		return ""
	}
	return run
}

func firstLine(s string) string {
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
