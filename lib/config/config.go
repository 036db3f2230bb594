// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable [Load] reads.
const EnvConfigPath = "GINTO_SANDBOXD_CONFIG"

// Config is the daemon configuration.
type Config struct {
	// Socket configures the local listening socket.
	Socket SocketConfig `yaml:"socket"`

	// Paths configures file and directory locations.
	Paths PathsConfig `yaml:"paths"`

	// HostPath configures which caller paths may be handed to the
	// provisioning script.
	HostPath HostPathConfig `yaml:"host_path"`

	// Server configures per-connection limits and the handler pool.
	Server ServerConfig `yaml:"server"`

	// Logging configures the process log.
	Logging LoggingConfig `yaml:"logging"`

	// Authorization optionally restricts which local users may create
	// sandboxes.
	Authorization AuthorizationConfig `yaml:"authorization"`
}

// SocketConfig configures the Unix socket.
type SocketConfig struct {
	// Path is the socket file.
	// Default: /run/ginto-sandboxd.sock
	Path string `yaml:"path"`

	// Mode is the octal permission applied after bind.
	// Default: "0660"
	Mode string `yaml:"mode"`

	// Group, when set, is the group name or numeric gid the socket is
	// chowned to so members can connect.
	Group string `yaml:"group"`
}

// PathsConfig configures file and directory locations.
type PathsConfig struct {
	// LogDir holds the process log and the per-sandbox install logs.
	// Default: /var/log/ginto-sandboxd
	LogDir string `yaml:"log_dir"`

	// StateDir holds the launch journal.
	// Default: /var/lib/ginto-sandboxd
	StateDir string `yaml:"state_dir"`

	// Script is the provisioning executable.
	// Default: /home/oliverbob/ginto/scripts/create_nspawn.sh
	Script string `yaml:"script"`

	// ProcessLog is the daemon's own log file.
	// Default: ${LOG_DIR}/ginto_sandboxd.log
	ProcessLog string `yaml:"process_log"`

	// Journal is the CBOR launch journal.
	// Default: ${STATE_DIR}/journal.cbor
	Journal string `yaml:"journal"`
}

// HostPathConfig configures host path validation.
type HostPathConfig struct {
	// AllowedRoots lists the directories a host path must equal or lie
	// beneath after symlink resolution.
	// Default: [/home, /var, /srv]
	AllowedRoots []string `yaml:"allowed_roots"`
}

// ServerConfig configures request handling.
type ServerConfig struct {
	// MaxRequestBytes caps the size of one request document.
	// Default: 8192
	MaxRequestBytes int `yaml:"max_request_bytes"`

	// ReadTimeout bounds how long a client may take to send its request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Workers is the number of connections handled concurrently.
	// Default: 4
	Workers int `yaml:"workers"`
}

// LoggingConfig configures the process log.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`

	// MaxSizeMB rotates the process log when it reaches this size.
	// Zero disables rotation and the file is only ever appended to.
	// Default: 0
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep (0 keeps all).
	MaxBackups int `yaml:"max_backups"`

	// MaxAgeDays removes rotated files older than this (0 keeps all).
	MaxAgeDays int `yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// AuthorizationConfig configures the peer credential allow-list. When
// both lists are empty every local peer that can open the socket is
// allowed.
type AuthorizationConfig struct {
	AllowedUIDs []uint32 `yaml:"allowed_uids"`
	AllowedGIDs []uint32 `yaml:"allowed_gids"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Path: "/run/ginto-sandboxd.sock",
			Mode: "0660",
		},
		Paths: PathsConfig{
			LogDir:     "/var/log/ginto-sandboxd",
			StateDir:   "/var/lib/ginto-sandboxd",
			Script:     "/home/oliverbob/ginto/scripts/create_nspawn.sh",
			ProcessLog: "${LOG_DIR}/ginto_sandboxd.log",
			Journal:    "${STATE_DIR}/journal.cbor",
		},
		HostPath: HostPathConfig{
			AllowedRoots: []string{"/home", "/var", "/srv"},
		},
		Server: ServerConfig{
			MaxRequestBytes: 8192,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Second,
			Workers:         4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by GINTO_SANDBOXD_CONFIG.
// When the variable is unset the expanded defaults are returned.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Values in the
// file replace defaults field by field; a named file that does not
// exist is an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.LogDir = expandVars(c.Paths.LogDir, vars)
	c.Paths.StateDir = expandVars(c.Paths.StateDir, vars)
	vars["LOG_DIR"] = c.Paths.LogDir
	vars["STATE_DIR"] = c.Paths.StateDir

	c.Socket.Path = expandVars(c.Socket.Path, vars)
	c.Paths.Script = expandVars(c.Paths.Script, vars)
	c.Paths.ProcessLog = expandVars(c.Paths.ProcessLog, vars)
	c.Paths.Journal = expandVars(c.Paths.Journal, vars)
	for index, root := range c.HostPath.AllowedRoots {
		c.HostPath.AllowedRoots[index] = expandVars(root, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// SocketMode returns Socket.Mode parsed as an octal permission.
func (c *Config) SocketMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.Socket.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("socket.mode %q is not an octal permission: %w", c.Socket.Mode, err)
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("socket.mode %q has bits outside 0777", c.Socket.Mode)
	}
	return os.FileMode(mode), nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	requireAbsolute := func(field, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		} else if !filepath.IsAbs(value) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", field, value))
		}
	}
	requireAbsolute("socket.path", c.Socket.Path)
	requireAbsolute("paths.log_dir", c.Paths.LogDir)
	requireAbsolute("paths.state_dir", c.Paths.StateDir)
	requireAbsolute("paths.script", c.Paths.Script)
	requireAbsolute("paths.process_log", c.Paths.ProcessLog)
	requireAbsolute("paths.journal", c.Paths.Journal)

	if _, err := c.SocketMode(); err != nil {
		errs = append(errs, err)
	}

	if len(c.HostPath.AllowedRoots) == 0 {
		errs = append(errs, fmt.Errorf("host_path.allowed_roots must list at least one directory"))
	}
	for index, root := range c.HostPath.AllowedRoots {
		field := fmt.Sprintf("host_path.allowed_roots[%d]", index)
		requireAbsolute(field, root)
		if filepath.Clean(root) == "/" {
			errs = append(errs, fmt.Errorf("%s: the filesystem root cannot be an allowed root", field))
		}
	}

	if c.Server.MaxRequestBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_request_bytes must be positive"))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1"))
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	if !contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format))
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("logging rotation limits must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the log and state directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
