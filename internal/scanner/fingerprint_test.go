package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bannerServer accepts one connection and writes payload to it.
func bannerServer(t *testing.T, payload string) uint16 {
	t.Helper()
	ln, port := newListener(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte(payload))
		time.Sleep(100 * time.Millisecond)
	}()
	return port
}

func TestFingerprintBanner(t *testing.T) {
	port := bannerServer(t, "nginx/1.18.0 (Ubuntu)\r\nready\r\n")

	info, ok := Fingerprint(context.Background(), "127.0.0.1", port, time.Second)
	require.True(t, ok)
	assert.Equal(t, "1.18.0", info.Version)
	assert.Equal(t, "nginx/1.18.0 (Ubuntu)", info.Info)
}

func TestFingerprintNoBanner(t *testing.T) {
	// Listener that accepts but never writes.
	ln, port := newListener(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		time.Sleep(time.Second)
		conn.Close()
	}()

	_, ok := Fingerprint(context.Background(), "127.0.0.1", port, 200*time.Millisecond)
	assert.False(t, ok)
}

func TestFingerprintClosedPort(t *testing.T) {
	_, ok := Fingerprint(context.Background(), "127.0.0.1", freePort(t), 200*time.Millisecond)
	assert.False(t, ok)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		banner string
		want   string
	}{
		{"server header", "Server: nginx/1.18.0", "1.18.0"},
		{"slash marker", "OpenSSH_9.6 protocol/2.0", "2.0"},
		{"version word", "mysql server version 5.7.40 ready", "5.7.40"},
		{"v prefix", "running v8.1", "8.1"},
		{"no version", "no version here", ""},
		{"empty", "", ""},
		{"too many dots rejected", "app/192.168.1.1 hello", ""},
		{"server header fallback", "Server: CustomServer", "CustomServer"},
		{"status line version wins", "HTTP/1.1 200 OK\r\nServer: nginx/1.18.0", "1.1"},
		{"trailing dot trimmed", "app/2.0. extra", "2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseVersion(tt.banner))
		})
	}
}
