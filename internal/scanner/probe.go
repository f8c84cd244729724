package scanner

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// probePort attempts a TCP connect to host:port within timeout. It
// returns the classified result and whether the result should be kept:
// timed-out probes carry no signal and are dropped from the aggregate.
func probePort(ctx context.Context, host string, port uint16, timeout time.Duration) (PortResult, bool) {
	dialer := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err == nil {
		conn.Close()
		return PortResult{Port: port, Status: StatusOpen, Protocol: "tcp"}, true
	}

	if ctx.Err() != nil {
		return PortResult{}, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return PortResult{}, false
	}

	// Explicit refusal or other immediate failure.
	return PortResult{Port: port, Status: StatusClosed, Protocol: "tcp"}, true
}
