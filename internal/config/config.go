package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkarlsen/devbay/internal/logging"
)

// Port bounds for supervised listeners. Ports below 1024 require
// elevated privileges and are rejected.
const (
	MinPort = 1024
	MaxPort = 65535

	// DefaultServerPort is used when no port is configured.
	DefaultServerPort = 8787
)

// Config represents the complete devbay configuration
type Config struct {
	// Shell runtime configuration
	Shell ShellConfig `yaml:"shell" json:"shell"`

	// Supervised backend server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Tunnel client configuration
	Tunnel TunnelConfig `yaml:"tunnel" json:"tunnel"`

	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Scheduler configuration
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// ShellConfig holds shell-runtime settings
type ShellConfig struct {
	// PID file location for the single-instance guard
	PIDFile string `yaml:"pid_file" json:"pid_file"`

	// Working directory
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ServerConfig holds supervised backend server settings
type ServerConfig struct {
	// Port the backend server listens on
	Port int `yaml:"port" json:"port"`

	// Directory containing the server package (dev mode)
	Dir string `yaml:"dir" json:"dir"`

	// Path to the bundled server script (production mode)
	Script string `yaml:"script" json:"script"`

	// Database file handed to the server through DB_PATH
	DBPath string `yaml:"db_path" json:"db_path"`

	// Run "npm run dev" in Dir instead of the bundled script
	DevMode bool `yaml:"dev_mode" json:"dev_mode"`
}

// TunnelConfig holds tunnel client settings
type TunnelConfig struct {
	// Port to expose through the tunnel (0 = server port)
	Port int `yaml:"port" json:"port"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Per-port connect timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Maximum concurrent probes per batch
	Parallelism int `yaml:"parallelism" json:"parallelism"`

	// Enable OS detection by default
	OSDetection bool `yaml:"os_detection" json:"os_detection"`

	// Enable service version detection by default
	VersionDetection bool `yaml:"version_detection" json:"version_detection"`

	// Prefer delegating to nmap when available
	PreferExternal bool `yaml:"prefer_external" json:"prefer_external"`
}

// APIConfig holds local control API settings
type APIConfig struct {
	// Enable the control API
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address (loopback only by default)
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SchedulerConfig holds periodic maintenance settings
type SchedulerConfig struct {
	// Enable periodic jobs
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron expression for the periodic localhost discovery scan
	ScanSchedule string `yaml:"scan_schedule" json:"scan_schedule"`

	// Cron expression for the supervised server liveness check
	HealthSchedule string `yaml:"health_schedule" json:"health_schedule"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			PIDFile:         "",
			WorkDir:         "",
			ShutdownTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Port:    DefaultServerPort,
			Dir:     "",
			Script:  "",
			DBPath:  "",
			DevMode: true,
		},
		Tunnel: TunnelConfig{
			Port: 0,
		},
		Scanning: ScanningConfig{
			Timeout:          200 * time.Millisecond,
			Parallelism:      100,
			OSDetection:      false,
			VersionDetection: false,
			PreferExternal:   false,
		},
		API: APIConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1",
			Port:           8790,
			RequestTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			ScanSchedule:   "@every 5m",
			HealthSchedule: "@every 30s",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := ValidatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server port: %w", err)
	}
	if c.Tunnel.Port != 0 {
		if err := ValidatePort(c.Tunnel.Port); err != nil {
			return fmt.Errorf("tunnel port: %w", err)
		}
	}

	if c.Scanning.Parallelism < 1 {
		return fmt.Errorf("scanning parallelism must be at least 1")
	}
	if c.Scanning.Timeout <= 0 {
		return fmt.Errorf("scanning timeout must be positive")
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > MaxPort {
			return fmt.Errorf("API port must be between 1 and %d", MaxPort)
		}
		if c.API.ListenAddr == "" {
			return fmt.Errorf("API listen address is required when API is enabled")
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ValidatePort checks that a port is usable for a supervised listener.
func ValidatePort(port int) error {
	if port == 0 {
		return fmt.Errorf("port 0 is not valid")
	}
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d is out of range (%d-%d)", port, MinPort, MaxPort)
	}
	return nil
}

// TunnelPort returns the port the tunnel should expose.
func (c *Config) TunnelPort() int {
	if c.Tunnel.Port != 0 {
		return c.Tunnel.Port
	}
	return c.Server.Port
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// IsAPIEnabled returns true if the control API is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API.Enabled
}
