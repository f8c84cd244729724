package tools

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindExistingTool(t *testing.T) {
	// sh exists on every platform we run on.
	path, err := Find("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestFindMissingTool(t *testing.T) {
	_, err := Find("definitely-not-a-real-binary-devbay")
	assert.Error(t, err)
}

func TestCheckMissingTool(t *testing.T) {
	info := Check(context.Background(), "definitely-not-a-real-binary-devbay")
	assert.False(t, info.Available)
	assert.Empty(t, info.Path)
	assert.Empty(t, info.Version)
}

func TestFirstVersionLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v20.11.0\n", "20.11.0"},
		{"10.2.4", "10.2.4"},
		{"Nmap version 7.94 ( https://nmap.org )\nsecond line", "Nmap version 7.94 ( https://nmap.org )"},
		{"  v1.0  \n", "1.0"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, firstVersionLine(tt.in))
	}
}

func TestPortAvailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	assert.False(t, PortAvailable(uint16(port)))

	ln.Close()
	assert.True(t, PortAvailable(uint16(port)))
}
