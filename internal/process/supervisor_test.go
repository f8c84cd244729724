package process

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/devbay/internal/errors"
)

func TestSupervisorStartAndStop(t *testing.T) {
	s := NewSupervisor(nil)

	h, err := s.Start(KindServer, sleepCmd())
	require.NoError(t, err)

	status := s.Status(KindServer)
	assert.True(t, status.Running)
	assert.Equal(t, h.PID(), status.PID)

	require.NoError(t, s.Stop(context.Background(), KindServer))
	assert.False(t, s.Status(KindServer).Running)
}

func TestSupervisorStartConflict(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Shutdown(context.Background())

	_, err := s.Start(KindServer, sleepCmd())
	require.NoError(t, err)

	_, err = s.Start(KindServer, sleepCmd())
	require.Error(t, err)
	assert.True(t, errors.IsStateConflict(err))
}

func TestSupervisorIndependentSlots(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Shutdown(context.Background())

	_, err := s.Start(KindServer, sleepCmd())
	require.NoError(t, err)

	// The tunnel slot is free even with the server running.
	_, err = s.Start(KindTunnel, sleepCmd())
	require.NoError(t, err)
}

func TestSupervisorStopNotRunning(t *testing.T) {
	s := NewSupervisor(nil)

	err := s.Stop(context.Background(), KindTunnel)
	require.Error(t, err)
	assert.True(t, errors.IsStateConflict(err))
}

func TestSupervisorSlotReclaimedAfterExit(t *testing.T) {
	s := NewSupervisor(nil)
	defer s.Shutdown(context.Background())

	h, err := s.Start(KindServer, exec.Command("true"))
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	_, err = s.Start(KindServer, sleepCmd())
	require.NoError(t, err)
}

func TestSupervisorShutdown(t *testing.T) {
	s := NewSupervisor(nil)

	server, err := s.Start(KindServer, sleepCmd())
	require.NoError(t, err)
	tunnel, err := s.Start(KindTunnel, sleepCmd())
	require.NoError(t, err)

	s.Shutdown(context.Background())

	assert.False(t, server.Running())
	assert.False(t, tunnel.Running())
	assert.False(t, s.Status(KindServer).Running)
	assert.False(t, s.Status(KindTunnel).Running)
}

func TestTunnelOutputScanning(t *testing.T) {
	s := NewSupervisor(nil)

	output := "npx: installed 22 packages\n" +
		"your url is: https://lazy-goat-42.loca.lt\n" +
		"Tunnel Password: 203.0.113.9\n" +
		"more output\n"
	s.scanTunnelOutput(strings.NewReader(output))

	url, password := s.TunnelInfo()
	assert.Equal(t, "https://lazy-goat-42.loca.lt", url)
	assert.Equal(t, "203.0.113.9", password)
	assert.Equal(t, []string{
		"npx: installed 22 packages",
		"your url is: https://lazy-goat-42.loca.lt",
		"Tunnel Password: 203.0.113.9",
		"more output",
	}, s.TunnelOutput().Lines())
}

func TestTunnelMarkersLastWriterWins(t *testing.T) {
	s := NewSupervisor(nil)

	s.scanTunnelOutput(strings.NewReader("your url is: https://first.loca.lt\n"))
	s.scanTunnelOutput(strings.NewReader("your url is: https://second.loca.lt\n"))

	assert.Equal(t, "https://second.loca.lt", s.TunnelURL())
}

func TestTunnelURLClearedOnStop(t *testing.T) {
	s := NewSupervisor(nil)

	_, err := s.Start(KindTunnel, sleepCmd())
	require.NoError(t, err)
	s.setTunnelInfo("https://example.loca.lt", "secret")

	require.NoError(t, s.Stop(context.Background(), KindTunnel))
	url, password := s.TunnelInfo()
	assert.Empty(t, url)
	assert.Empty(t, password)
}

func TestServerOptionsValidation(t *testing.T) {
	s := NewSupervisor(nil)

	_, err := s.StartServer(ServerOptions{Port: 0})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))

	_, err = s.StartServer(ServerOptions{Port: 8787, DevMode: false, Script: ""})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}
