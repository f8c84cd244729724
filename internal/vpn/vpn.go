// Package vpn reports on and configures the machine's tailscale node.
// devbay uses it to tell whether remote access is possible and to
// publish the backend over tailscale serve.
package vpn

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/logging"
	"github.com/mkarlsen/devbay/internal/tools"
)

const toolName = "tailscale"

// servePorts are tried in order when publishing; 443 needs no client
// side port but may already be claimed by another serve config.
var servePorts = []uint16{443, 8443}

// Status describes the local tailscale node.
type Status struct {
	// Installed is false when the tailscale binary is absent
	Installed bool `json:"installed"`
	// BackendState is tailscale's own state string, e.g. "Running",
	// "Stopped", "NeedsLogin"
	BackendState string `json:"backend_state,omitempty"`
	// AuthURL is set while the node waits for login
	AuthURL string `json:"auth_url,omitempty"`
	// HostName is the node's name inside the tailnet
	HostName string `json:"host_name,omitempty"`
	// DNSName is the node's MagicDNS name
	DNSName string `json:"dns_name,omitempty"`
	// IPs are the node's tailnet addresses
	IPs []string `json:"ips,omitempty"`
}

// Connected reports whether the node is up and usable.
func (s Status) Connected() bool {
	return s.Installed && s.BackendState == "Running"
}

// Client shells out to the tailscale binary.
type Client struct {
	logger *logging.Logger

	// run is swapped by tests
	run func(ctx context.Context, args ...string) ([]byte, string, error)
}

// NewClient creates a tailscale client.
func NewClient(logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{logger: logger.WithComponent("vpn")}
	c.run = c.execTailscale
	return c
}

func (c *Client) execTailscale(ctx context.Context, args ...string) ([]byte, string, error) {
	path, err := tools.Find(toolName)
	if err != nil {
		return nil, "", err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// statusPayload mirrors the fields we need from
// `tailscale status --json`.
type statusPayload struct {
	BackendState string `json:"BackendState"`
	AuthURL      string `json:"AuthURL"`
	Self         struct {
		HostName     string   `json:"HostName"`
		DNSName      string   `json:"DNSName"`
		TailscaleIPs []string `json:"TailscaleIPs"`
	} `json:"Self"`
}

// Status queries the node state. A missing binary yields a valid
// not-installed status rather than an error.
func (c *Client) Status(ctx context.Context) (Status, error) {
	if _, err := tools.Find(toolName); err != nil {
		return Status{Installed: false}, nil
	}

	out, stderr, err := c.run(ctx, "status", "--json")
	if err != nil && len(out) == 0 {
		toolErr := &errors.ToolError{
			Code:    errors.CodeSubprocess,
			Message: "tailscale status failed",
			Tool:    toolName,
			Cause:   err,
		}
		return Status{Installed: true}, toolErr.WithStderr(stderr)
	}

	// tailscale exits non-zero in some states but still prints JSON.
	return parseStatus(out)
}

// parseStatus decodes the status JSON into the public model.
func parseStatus(out []byte) (Status, error) {
	var payload statusPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return Status{Installed: true}, &errors.ToolError{
			Code:    errors.CodeParse,
			Message: "unexpected tailscale status output",
			Tool:    toolName,
			Cause:   err,
		}
	}
	return Status{
		Installed:    true,
		BackendState: payload.BackendState,
		AuthURL:      payload.AuthURL,
		HostName:     payload.Self.HostName,
		DNSName:      strings.TrimSuffix(payload.Self.DNSName, "."),
		IPs:          payload.Self.TailscaleIPs,
	}, nil
}

// ServeStart publishes a local target over HTTPS on the tailnet. Port
// 443 is preferred; when tailscale rejects it the alternate port is
// tried before giving up.
func (c *Client) ServeStart(ctx context.Context, target string) (uint16, error) {
	var lastErr error
	for _, port := range servePorts {
		args := []string{"serve", "--yes", "--bg", "--https", strconv.Itoa(int(port)), target}
		_, stderr, err := c.run(ctx, args...)
		if err == nil {
			c.logger.Info("Tailscale serve started", "https_port", port, "target", target)
			return port, nil
		}
		toolErr := &errors.ToolError{
			Code:    errors.CodeSubprocess,
			Message: "tailscale serve failed",
			Tool:    toolName,
			Cause:   err,
		}
		lastErr = toolErr.WithStderr(stderr)
		c.logger.Warn("Tailscale serve attempt failed", "https_port", port, "error", err)
	}
	return 0, lastErr
}

// ServeStop clears the node's serve configuration.
func (c *Client) ServeStop(ctx context.Context) error {
	_, stderr, err := c.run(ctx, "serve", "reset")
	if err != nil {
		toolErr := &errors.ToolError{
			Code:    errors.CodeSubprocess,
			Message: "tailscale serve reset failed",
			Tool:    toolName,
			Cause:   err,
		}
		return toolErr.WithStderr(stderr)
	}
	c.logger.Info("Tailscale serve stopped")
	return nil
}

// ServeURL extracts the public serve URL from a serve status payload.
// Works on both the JSON and text listings by taking the first https://
// token; empty when nothing is being served.
func ServeURL(out string) string {
	idx := strings.Index(out, "https://")
	if idx < 0 {
		return ""
	}
	rest := out[idx:]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r == '"' || r == '\'' || r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSuffix(rest, ":")
}

// ServeStatus returns the raw serve configuration, preferring JSON and
// falling back to the text listing on older clients.
func (c *Client) ServeStatus(ctx context.Context) (string, error) {
	out, _, err := c.run(ctx, "serve", "status", "--json")
	if err == nil {
		return string(out), nil
	}
	out, stderr, err := c.run(ctx, "serve", "status")
	if err != nil {
		toolErr := &errors.ToolError{
			Code:    errors.CodeSubprocess,
			Message: "tailscale serve status failed",
			Tool:    toolName,
			Cause:   err,
		}
		return "", toolErr.WithStderr(stderr)
	}
	return string(out), nil
}
