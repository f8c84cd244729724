package process

import (
	"bufio"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mkarlsen/devbay/internal/tools"
)

// Marker phrases preceding the public URL and the access password in
// the tunnel client's output. Substring matches, not a grammar.
const (
	tunnelURLMarker      = "your url is:"
	tunnelPasswordMarker = "tunnel password:"
)

// StartTunnel exposes a local port through localtunnel. The client's
// output is streamed into the tunnel output buffer and scanned for the
// assigned public URL.
func (s *Supervisor) StartTunnel(port uint16) (*Handle, error) {
	npx, err := tools.Find("npx")
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(npx, "localtunnel", "--port", strconv.Itoa(int(port)))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	s.setTunnelInfo("", "")
	handle, err := s.Start(KindTunnel, cmd)
	if err != nil {
		return nil, err
	}

	go s.scanTunnelOutput(stdout)
	go s.scanTunnelOutput(stderr)
	return handle, nil
}

// scanTunnelOutput publishes each output line and captures URL and
// password announcements when they pass by. Each field is
// last-writer-wins.
func (s *Supervisor) scanTunnelOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.output.Publish(line)

		if url := markerValue(line, tunnelURLMarker); url != "" {
			s.setTunnelURL(url)
			s.logger.InfoProcess("Tunnel URL assigned", string(KindTunnel), "url", url)
		}
		if password := markerValue(line, tunnelPasswordMarker); password != "" {
			s.setTunnelPassword(password)
		}
	}
}

// markerValue extracts the trimmed remainder of a line after a marker
// phrase, empty when the marker is absent.
func markerValue(line, marker string) string {
	idx := strings.Index(strings.ToLower(line), marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+len(marker):])
}
