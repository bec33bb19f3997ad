// Package config loads pgtun's YAML configuration and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. Every field is optional.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	PgDumpPath    string `yaml:"pg_dump_path"`
	PgDumpAllPath string `yaml:"pg_dumpall_path"`

	SSHBinary       string   `yaml:"ssh_binary"`
	AllowAgent      bool     `yaml:"allow_agent"`
	BatchMode       bool     `yaml:"batch_mode"`
	InsecureHostKey bool     `yaml:"insecure_host_key"`
	KnownHostsFile  string   `yaml:"known_hosts_file"`
	SSHOptions      []string `yaml:"ssh_options"`

	Tunnel        TunnelConfig  `yaml:"tunnel"`
	DumpStopGrace time.Duration `yaml:"dump_stop_grace"`

	MetricsTextfile string `yaml:"metrics_textfile"`
	DataDir         string `yaml:"data_dir"`

	AliasDSN      map[string]string `yaml:"alias_dsn"`
	SSHTunnels    PatternList       `yaml:"ssh_tunnels"`
	DSNSSHTunnels PatternList       `yaml:"dsn_ssh_tunnels"`
}

type TunnelConfig struct {
	Backend             string        `yaml:"backend"`
	LocalPort           int           `yaml:"local_port"`
	ReadyAttempts       int           `yaml:"ready_attempts"`
	ReadyInitialBackoff time.Duration `yaml:"ready_initial_backoff"`
	ReadyMaxBackoff     time.Duration `yaml:"ready_max_backoff"`
	ReadyTimeout        time.Duration `yaml:"ready_timeout"`
	StopGrace           time.Duration `yaml:"stop_grace"`
}

// Env holds PGTUN_* overrides.
type Env struct {
	Config          string `envconfig:"CONFIG"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
	LogFormat       string `envconfig:"LOG_FORMAT"`
	PgDump          string `envconfig:"PG_DUMP"`
	PgDumpAll       string `envconfig:"PG_DUMPALL"`
	SSHBinary       string `envconfig:"SSH_BINARY"`
	SSHBackend      string `envconfig:"SSH_BACKEND"`
	MetricsTextfile string `envconfig:"METRICS_TEXTFILE"`
}

// LibPQ holds the libpq environment the dump tools themselves honour.
type LibPQ struct {
	Host    string `envconfig:"PGHOST"`
	Port    string `envconfig:"PGPORT"`
	Service string `envconfig:"PGSERVICE"`
}

func Default() *Config {
	return &Config{
		LogLevel:      "warn",
		LogFormat:     "text",
		SSHBinary:     "ssh",
		AllowAgent:    true,
		DumpStopGrace: 5 * time.Second,
		Tunnel: TunnelConfig{
			Backend:             "exec",
			ReadyAttempts:       10,
			ReadyInitialBackoff: 100 * time.Millisecond,
			ReadyMaxBackoff:     time.Second,
			ReadyTimeout:        5 * time.Second,
			StopGrace:           2 * time.Second,
		},
	}
}

// LoadEnv reads the PGTUN_* variables.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("PGTUN", &env); err != nil {
		return Env{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return env, nil
}

// Path returns the config file location: $PGTUN_CONFIG, then
// $XDG_CONFIG_HOME/pgtun/config.yaml, then ~/.config/pgtun/config.yaml.
func Path(env Env) string {
	if env.Config != "" {
		return env.Config
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pgtun", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pgtun", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
// Invalid values are replaced by their defaults and reported as warnings;
// only unreadable or unparsable files return an error, together with the
// defaults so the caller can carry on.
func Load(path string) (*Config, []string, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil, nil
	}
	if err != nil {
		return Default(), nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}
	warnings := cfg.validate()
	for _, list := range []PatternList{cfg.SSHTunnels, cfg.DSNSSHTunnels} {
		for _, p := range list.Skipped {
			warnings = append(warnings, fmt.Sprintf("ignoring invalid tunnel pattern %q", p))
		}
	}
	return cfg, warnings, nil
}

// ApplyEnv overlays PGTUN_* environment variables.
func (c *Config) ApplyEnv(env Env) []string {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.LogLevel, env.LogLevel)
	set(&c.LogFormat, env.LogFormat)
	set(&c.PgDumpPath, env.PgDump)
	set(&c.PgDumpAllPath, env.PgDumpAll)
	set(&c.SSHBinary, env.SSHBinary)
	set(&c.Tunnel.Backend, env.SSHBackend)
	set(&c.MetricsTextfile, env.MetricsTextfile)
	return c.validate()
}

// LoadLibPQ reads PGHOST, PGPORT and PGSERVICE.
func LoadLibPQ() LibPQ {
	var pq LibPQ
	_ = envconfig.Process("", &pq)
	return pq
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validBackends   = map[string]bool{"exec": true, "native": true}
)

// validate resets invalid settings to defaults and describes what it changed.
func (c *Config) validate() []string {
	d := Default()
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if !validLogLevels[c.LogLevel] {
		warn("invalid `log_level` %q supplied, defaulting to `%s`", c.LogLevel, d.LogLevel)
		c.LogLevel = d.LogLevel
	}
	if !validLogFormats[c.LogFormat] {
		warn("invalid `log_format` %q supplied, defaulting to `%s`", c.LogFormat, d.LogFormat)
		c.LogFormat = d.LogFormat
	}
	if c.SSHBinary == "" {
		c.SSHBinary = d.SSHBinary
	}
	if !validBackends[c.Tunnel.Backend] {
		warn("invalid `tunnel.backend` %q supplied, defaulting to `%s`", c.Tunnel.Backend, d.Tunnel.Backend)
		c.Tunnel.Backend = d.Tunnel.Backend
	}
	if c.Tunnel.LocalPort < 0 || c.Tunnel.LocalPort > 65535 {
		warn("invalid `tunnel.local_port` %d supplied, allocating ports dynamically", c.Tunnel.LocalPort)
		c.Tunnel.LocalPort = 0
	}
	if c.Tunnel.ReadyAttempts <= 0 {
		c.Tunnel.ReadyAttempts = d.Tunnel.ReadyAttempts
	}
	if c.Tunnel.ReadyInitialBackoff <= 0 {
		c.Tunnel.ReadyInitialBackoff = d.Tunnel.ReadyInitialBackoff
	}
	if c.Tunnel.ReadyMaxBackoff <= 0 {
		c.Tunnel.ReadyMaxBackoff = d.Tunnel.ReadyMaxBackoff
	}
	if c.Tunnel.ReadyTimeout <= 0 {
		c.Tunnel.ReadyTimeout = d.Tunnel.ReadyTimeout
	}
	if c.Tunnel.StopGrace <= 0 {
		c.Tunnel.StopGrace = d.Tunnel.StopGrace
	}
	if c.DumpStopGrace <= 0 {
		c.DumpStopGrace = d.DumpStopGrace
	}
	return warnings
}

// TunnelURL finds the configured bastion for a target: dsn_ssh_tunnels is
// matched against the alias first, then ssh_tunnels against the host.
func (c *Config) TunnelURL(alias, host string) (string, bool) {
	if alias != "" {
		if url, ok := c.DSNSSHTunnels.Match(alias); ok {
			return url, true
		}
	}
	if host != "" {
		if url, ok := c.SSHTunnels.Match(host); ok {
			return url, true
		}
	}
	return "", false
}
