package scanner

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newListener opens an ephemeral TCP listener on loopback and returns it
// with its port.
func newListener(t *testing.T) (net.Listener, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return ln, uint16(port)
}

// freePort returns a port that was just released and should refuse
// connections.
func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, port := newListener(t)
	ln.Close()
	return port
}

func testOptions(ports ...uint16) Options {
	opts := DefaultOptions()
	opts.Ports = ports
	opts.Timeout = 500 * time.Millisecond
	return opts
}

func TestScanOpenPort(t *testing.T) {
	_, port := newListener(t)

	report, err := New(nil).Scan(context.Background(), "127.0.0.1", testOptions(port))
	require.NoError(t, err)

	require.Len(t, report.Ports, 1)
	assert.Equal(t, port, report.Ports[0].Port)
	assert.Equal(t, StatusOpen, report.Ports[0].Status)
	assert.Equal(t, "tcp", report.Ports[0].Protocol)
	assert.Equal(t, "127.0.0.1", report.Host)
}

func TestScanClosedPortNotReported(t *testing.T) {
	port := freePort(t)

	report, err := New(nil).Scan(context.Background(), "127.0.0.1", testOptions(port))
	require.NoError(t, err)

	assert.Empty(t, report.Ports)
}

func TestScanMixedPorts(t *testing.T) {
	_, open := newListener(t)
	closed := freePort(t)

	report, err := New(nil).Scan(context.Background(), "127.0.0.1", testOptions(open, closed))
	require.NoError(t, err)

	require.Len(t, report.Ports, 1)
	assert.Equal(t, open, report.Ports[0].Port)
}

func TestScanParallelismEquivalence(t *testing.T) {
	_, a := newListener(t)
	_, b := newListener(t)
	closed := freePort(t)

	openSet := func(parallelism int) map[uint16]bool {
		opts := testOptions(a, b, closed)
		opts.Parallelism = parallelism
		report, err := New(nil).Scan(context.Background(), "127.0.0.1", opts)
		require.NoError(t, err)
		set := make(map[uint16]bool)
		for _, p := range report.Ports {
			set[p.Port] = true
		}
		return set
	}

	sequential := openSet(1)
	concurrent := openSet(100)
	assert.Equal(t, sequential, concurrent)
	assert.Equal(t, map[uint16]bool{a: true, b: true}, concurrent)
}

func TestScanStaticServiceNames(t *testing.T) {
	_, port := newListener(t)

	report, err := New(nil).Scan(context.Background(), "127.0.0.1", testOptions(port))
	require.NoError(t, err)

	// Ephemeral ports carry no static service name.
	require.Len(t, report.Ports, 1)
	assert.Empty(t, report.Ports[0].Service)

	name, ok := ServiceNameForPort(22)
	assert.True(t, ok)
	assert.Equal(t, "ssh", name)
}

func TestScanStaticServiceEntries(t *testing.T) {
	// A well-known port gets a services entry from the static table even
	// without version detection.
	ln, err := net.Listen("tcp", "127.0.0.1:8787")
	if err != nil {
		t.Skipf("port 8787 unavailable: %v", err)
	}
	defer ln.Close()

	report, err := New(nil).Scan(context.Background(), "127.0.0.1", testOptions(8787))
	require.NoError(t, err)

	require.Len(t, report.Ports, 1)
	assert.Equal(t, "devbay", report.Ports[0].Service)
	require.Len(t, report.Services, 1)
	assert.Equal(t, "devbay", report.Services[0].Name)
	assert.Empty(t, report.Services[0].Version)
}

func TestScanInvalidOptions(t *testing.T) {
	opts := testOptions(80)
	opts.Parallelism = 0
	_, err := New(nil).Scan(context.Background(), "127.0.0.1", opts)
	assert.Error(t, err)

	opts = testOptions(80)
	opts.Timeout = 0
	_, err = New(nil).Scan(context.Background(), "127.0.0.1", opts)
	assert.Error(t, err)
}

func TestScanEmptyHost(t *testing.T) {
	_, err := New(nil).Scan(context.Background(), "", testOptions(80))
	assert.Error(t, err)
}

func TestScanCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Scan(ctx, "127.0.0.1", testOptions(freePort(t)))
	assert.Error(t, err)
}

func TestDefaultPortList(t *testing.T) {
	opts := DefaultOptions()
	ports := opts.PortList()
	assert.Len(t, ports, 20)
	assert.Contains(t, ports, uint16(22))
	assert.Contains(t, ports, uint16(8787))

	opts.Ports = []uint16{80}
	assert.Equal(t, []uint16{80}, opts.PortList())
}

func TestDefaultHostList(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, []string{"127.0.0.1"}, opts.HostList())

	opts.Hosts = []string{"10.0.0.1", "10.0.0.2"}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, opts.HostList())
}
