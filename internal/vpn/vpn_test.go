package vpn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runningStatusJSON = `{
	"BackendState": "Running",
	"AuthURL": "",
	"Self": {
		"HostName": "devbox",
		"DNSName": "devbox.tail1234.ts.net.",
		"TailscaleIPs": ["100.64.0.7", "fd7a::7"]
	}
}`

func TestParseStatusRunning(t *testing.T) {
	status, err := parseStatus([]byte(runningStatusJSON))
	require.NoError(t, err)

	assert.True(t, status.Installed)
	assert.True(t, status.Connected())
	assert.Equal(t, "Running", status.BackendState)
	assert.Equal(t, "devbox", status.HostName)
	assert.Equal(t, "devbox.tail1234.ts.net", status.DNSName)
	assert.Equal(t, []string{"100.64.0.7", "fd7a::7"}, status.IPs)
}

func TestParseStatusNeedsLogin(t *testing.T) {
	payload := `{"BackendState": "NeedsLogin", "AuthURL": "https://login.tailscale.com/a/abc123"}`
	status, err := parseStatus([]byte(payload))
	require.NoError(t, err)

	assert.False(t, status.Connected())
	assert.Equal(t, "NeedsLogin", status.BackendState)
	assert.Equal(t, "https://login.tailscale.com/a/abc123", status.AuthURL)
}

func TestParseStatusGarbage(t *testing.T) {
	_, err := parseStatus([]byte("not json at all"))
	assert.Error(t, err)
}

// fakeRun scripts the tailscale invocations a test expects.
type fakeRun struct {
	calls   [][]string
	results []fakeResult
}

type fakeResult struct {
	out    string
	stderr string
	err    error
}

func (f *fakeRun) run(_ context.Context, args ...string) ([]byte, string, error) {
	f.calls = append(f.calls, args)
	if len(f.results) == 0 {
		return nil, "", nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return []byte(r.out), r.stderr, r.err
}

func newFakeClient(results ...fakeResult) (*Client, *fakeRun) {
	fake := &fakeRun{results: results}
	c := NewClient(nil)
	c.run = fake.run
	return c, fake
}

func TestServeStartPrefers443(t *testing.T) {
	c, fake := newFakeClient(fakeResult{})

	port, err := c.ServeStart(context.Background(), "http://127.0.0.1:8787")
	require.NoError(t, err)
	assert.Equal(t, uint16(443), port)

	require.Len(t, fake.calls, 1)
	assert.Equal(t,
		[]string{"serve", "--yes", "--bg", "--https", "443", "http://127.0.0.1:8787"},
		fake.calls[0])
}

func TestServeStartFallsBackTo8443(t *testing.T) {
	c, fake := newFakeClient(
		fakeResult{stderr: "port 443 already in use", err: errors.New("exit status 1")},
		fakeResult{},
	)

	port, err := c.ServeStart(context.Background(), "http://127.0.0.1:8787")
	require.NoError(t, err)
	assert.Equal(t, uint16(8443), port)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, "8443", fake.calls[1][4])
}

func TestServeStartBothPortsFail(t *testing.T) {
	c, _ := newFakeClient(
		fakeResult{err: errors.New("exit status 1")},
		fakeResult{stderr: "still broken", err: errors.New("exit status 1")},
	)

	_, err := c.ServeStart(context.Background(), "http://127.0.0.1:8787")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve failed")
}

func TestServeStop(t *testing.T) {
	c, fake := newFakeClient(fakeResult{})

	require.NoError(t, c.ServeStop(context.Background()))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{"serve", "reset"}, fake.calls[0])
}

func TestServeURL(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{
			"text listing",
			"https://devbox.tail1234.ts.net (tailnet only)\n|-- / proxy http://127.0.0.1:8787",
			"https://devbox.tail1234.ts.net",
		},
		{
			"json listing",
			`{"Web":{"devbox.ts.net:443":{"Handlers":{"/":{"Proxy":"http://127.0.0.1:8787"}}}},"AllowFunnel":{"https://devbox.ts.net":false}}`,
			"https://devbox.ts.net",
		},
		{"nothing served", "No serve config", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ServeURL(tt.out))
		})
	}
}

func TestServeStatusTextFallback(t *testing.T) {
	c, fake := newFakeClient(
		fakeResult{err: errors.New("unknown flag --json")},
		fakeResult{out: "https://devbox.ts.net (tailnet only)\n|-- / proxy http://127.0.0.1:8787"},
	)

	out, err := c.ServeStatus(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "proxy http://127.0.0.1:8787")
	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"serve", "status"}, fake.calls[1])
}
