// Package tools locates the external binaries devbay depends on and
// answers environment questions for the CLI and API.
package tools

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mkarlsen/devbay/internal/errors"
	"github.com/mkarlsen/devbay/internal/logging"
)

// extraPaths are searched after PATH; package managers on macOS and
// per-user installs commonly live here.
var extraPaths = []string{
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/usr/bin",
}

// Info describes a located external tool.
type Info struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Available bool   `json:"available"`
}

// Find locates an executable by name. PATH is consulted first, then a
// short list of conventional install locations.
func Find(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	for _, dir := range extraPaths {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".local", "bin", name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", errors.ErrToolNotFound(name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Check locates a tool and queries its version with `--version`.
func Check(ctx context.Context, name string) Info {
	path, err := Find(name)
	if err != nil {
		return Info{Name: name}
	}
	info := Info{Name: name, Path: path, Available: true}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err == nil {
		info.Version = firstVersionLine(string(out))
	}
	return info
}

// firstVersionLine normalizes version output to its first line without
// a leading "v".
func firstVersionLine(out string) string {
	line := out
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	return strings.TrimPrefix(line, "v")
}

// Environment summarizes the development toolchain on this machine.
type Environment struct {
	Node Info `json:"node"`
	NPM  Info `json:"npm"`
	PNPM Info `json:"pnpm"`
	Nmap Info `json:"nmap"`
}

// CheckEnvironment probes the tools devbay's managed processes need.
func CheckEnvironment(ctx context.Context) Environment {
	logger := logging.Default().WithComponent("tools")
	env := Environment{
		Node: Check(ctx, "node"),
		NPM:  Check(ctx, "npm"),
		PNPM: Check(ctx, "pnpm"),
		Nmap: Check(ctx, "nmap"),
	}
	logger.Debug("Environment checked",
		"node", env.Node.Available,
		"npm", env.NPM.Available,
		"pnpm", env.PNPM.Available,
		"nmap", env.Nmap.Available)
	return env
}

// PortAvailable reports whether a local TCP port can be bound.
func PortAvailable(port uint16) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
