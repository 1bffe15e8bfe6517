package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/jobd/internal/logging"
)

// DaemonConfig holds configuration for the jobd daemon.
type DaemonConfig struct {
	DataDir      string             `yaml:"data_dir"` // Private state dir: snapshot, pid file, socket (default ".data")
	LogDir       string             `yaml:"log_dir"`  // Per-job log files (default "logs")
	WorkDir      string             `yaml:"work_dir"` // Working directory for jobs without their own (default: daemon cwd)
	Socket       string             `yaml:"socket"`   // Unix socket path (default <data_dir>/jobd.sock)
	Addr         string             `yaml:"addr"`     // Optional TCP listen address; empty disables it
	Store        StoreConfig        `yaml:"store"`
	Log          LogConfig          `yaml:"log"`
	Reachability ReachabilityConfig `yaml:"reachability"`
	Archive      ArchiveConfig      `yaml:"archive"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "file"
	Path   string `yaml:"path"`   // Snapshot path (default under data_dir)
}

// LogConfig configures the daemon's own log.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ReachabilityConfig configures the probe run before a worker is added.
// "{worker}" in Command is replaced with the worker identity.
type ReachabilityConfig struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// ArchiveConfig configures uploading finished job logs to S3.
type ArchiveConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Bucket   string        `yaml:"bucket"`
	Prefix   string        `yaml:"prefix"`
	Region   string        `yaml:"region"`
	Endpoint string        `yaml:"endpoint"` // Custom endpoint for S3-compatible stores
	Timeout  time.Duration `yaml:"timeout"`  // Per-upload bound
}

// DefaultDaemonConfig returns sensible defaults.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		DataDir: ".data",
		LogDir:  "logs",
		Store:   StoreConfig{Driver: "sqlite"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Reachability: ReachabilityConfig{
			Command: []string{
				"ssh", "-o", "BatchMode=yes", "-o", "PasswordAuthentication=no",
				"-o", "ConnectTimeout=5", "{worker}", "/bin/true",
			},
			Timeout: 15 * time.Second,
		},
		Archive: ArchiveConfig{Prefix: "jobs/", Timeout: 2 * time.Minute},
	}
}

// Load reads a YAML config file over the defaults. Keys missing from the
// file keep their default values.
func Load(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the daemon cannot run with.
func (c DaemonConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir is required")
	}
	switch c.Store.Driver {
	case "", "sqlite", "file":
	default:
		return fmt.Errorf("store.driver %q: want sqlite or file", c.Store.Driver)
	}
	if _, err := logging.LookupLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if err := logging.CheckFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}
	return nil
}

// SocketPath returns the control socket path.
func (c DaemonConfig) SocketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	return filepath.Join(c.DataDir, "jobd.sock")
}

// PIDPath returns the single-instance pid file path.
func (c DaemonConfig) PIDPath() string {
	return filepath.Join(c.DataDir, "jobd.pid")
}

// StorePath returns the snapshot path for the configured driver.
func (c DaemonConfig) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Driver == "file" {
		return filepath.Join(c.DataDir, "state.json")
	}
	return filepath.Join(c.DataDir, "state.db")
}
