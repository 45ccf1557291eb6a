// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the stub's YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/gdbstub/internal/tracing"
	"github.com/tombee/gdbstub/internal/transport"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Defaults shared with the packages that consume them.
const (
	DefaultMaxPacketSize = 16384
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultBaud          = 115200
	DefaultMetricsListen = "127.0.0.1:9464"
	DefaultTargetKind    = "sim"
	DefaultArch          = "i486"
)

// Config represents the complete stub configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Target  TargetConfig  `yaml:"target" json:"target"`
	Regmaps RegmapsConfig `yaml:"regmaps" json:"regmaps"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	History HistoryConfig `yaml:"history" json:"history"`
}

// ServerConfig configures the debugger-facing listener.
type ServerConfig struct {
	// Transport is one of tcp, unix, serial, quic, ws.
	// Environment: GDBSTUB_TRANSPORT
	// Default: tcp
	Transport string `yaml:"transport" json:"transport"`

	// Listen is host:port for tcp, quic and ws.
	// Environment: GDBSTUB_LISTEN
	// Default: 127.0.0.1:2159
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// SocketPath is the unix socket path.
	SocketPath string `yaml:"socket_path,omitempty" json:"socket_path,omitempty"`

	Serial SerialConfig `yaml:"serial,omitempty" json:"serial,omitempty"`
	QUIC   QUICConfig   `yaml:"quic,omitempty" json:"quic,omitempty"`
	WS     WSConfig     `yaml:"ws,omitempty" json:"ws,omitempty"`

	// MaxPacketSize is the largest payload accepted and advertised.
	// Default: 16384
	MaxPacketSize int `yaml:"max_packet_size,omitempty" json:"max_packet_size,omitempty"`

	// PollInterval bounds how long a session waits on the connection before
	// checking whether a resumed target halted.
	// Default: 10ms
	PollInterval time.Duration `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`

	// AllowRemote must be true to accept tcp peers off the loopback interface.
	AllowRemote bool `yaml:"allow_remote" json:"allow_remote"`
}

// SerialConfig configures the serial transport.
type SerialConfig struct {
	Port string `yaml:"port,omitempty" json:"port,omitempty"`
	Baud int    `yaml:"baud,omitempty" json:"baud,omitempty"`
}

// QUICConfig configures the quic transport. A self-signed certificate is
// generated when both paths are empty.
type QUICConfig struct {
	TLSCert string `yaml:"tls_cert,omitempty" json:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty" json:"tls_key,omitempty"`
}

// WSConfig configures the websocket transport.
type WSConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the log level (trace, debug, info, warn, error).
	Level string `yaml:"level" json:"level"`

	// Format is the log format (json, text, auto).
	Format string `yaml:"format" json:"format"`

	AddSource bool `yaml:"add_source,omitempty" json:"add_source,omitempty"`
}

// TargetConfig selects and configures the debugged target.
type TargetConfig struct {
	// Kind is the target implementation. Only "sim" is built in.
	Kind string `yaml:"kind" json:"kind"`

	// Arch selects the register layout and the register map.
	// Environment: GDBSTUB_ARCH
	// Default: i486
	Arch string `yaml:"arch" json:"arch"`

	MemorySize  int    `yaml:"memory_size,omitempty" json:"memory_size,omitempty"`
	BaseAddress uint64 `yaml:"base_address,omitempty" json:"base_address,omitempty"`

	// Program is a raw image loaded at Entry.
	Program string `yaml:"program,omitempty" json:"program,omitempty"`
	Entry   uint64 `yaml:"entry,omitempty" json:"entry,omitempty"`

	// BigEndian overrides the architecture's byte order when set.
	BigEndian *bool `yaml:"big_endian,omitempty" json:"big_endian,omitempty"`

	// ClockHz caps the simulated instruction rate. Negative disables the cap.
	ClockHz int `yaml:"clock_hz,omitempty" json:"clock_hz,omitempty"`

	// BreakConditions maps breakpoint addresses ("0x1000") to expressions
	// over the registers, e.g. "eax > 3".
	BreakConditions map[string]string `yaml:"break_conditions,omitempty" json:"break_conditions,omitempty"`
}

// RegmapsConfig locates register map files.
type RegmapsConfig struct {
	// Dir holds map files. Empty means built-in maps only.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Pattern selects files below Dir.
	// Default: **/*.yaml
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Watch reloads maps when files change. New sessions use the reloaded maps.
	Watch bool `yaml:"watch" json:"watch"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter is stdout, otlp-grpc or otlp-http.
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`

	// SampleRate is the fraction of sessions traced (0.0-1.0).
	SampleRate float64 `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
}

// HistoryConfig configures the session history database.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite file.
	// Default: $XDG_DATA_HOME/gdbstub/history.db
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:     string(transport.KindTCP),
			Listen:        transport.DefaultTCPAddress,
			SocketPath:    defaultSocketPath(),
			Serial:        SerialConfig{Baud: DefaultBaud},
			WS:            WSConfig{Path: transport.DefaultWSPath},
			MaxPacketSize: DefaultMaxPacketSize,
			PollInterval:  DefaultPollInterval,
			AllowRemote:   false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Target: TargetConfig{
			Kind: DefaultTargetKind,
			Arch: DefaultArch,
		},
		Regmaps: RegmapsConfig{
			Pattern: "**/*.yaml",
		},
		Metrics: MetricsConfig{
			Enabled: false, // Opt-in
			Listen:  DefaultMetricsListen,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   tracing.ExporterStdout,
			SampleRate: 1.0,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over the file.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read is Load without validation, for tools that report problems
// instead of failing on them.
func Read(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &stuberrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	cfg.loadFromEnv()

	return cfg, nil
}

// LoadDefault loads the file at ConfigPath when it exists, and the
// environment otherwise.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Load("")
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.Transport == "" {
		c.Server.Transport = defaults.Server.Transport
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaults.Server.Listen
	}
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = defaults.Server.SocketPath
	}
	if c.Server.Serial.Baud == 0 {
		c.Server.Serial.Baud = defaults.Server.Serial.Baud
	}
	if c.Server.WS.Path == "" {
		c.Server.WS.Path = defaults.Server.WS.Path
	}
	if c.Server.MaxPacketSize == 0 {
		c.Server.MaxPacketSize = defaults.Server.MaxPacketSize
	}
	if c.Server.PollInterval == 0 {
		c.Server.PollInterval = defaults.Server.PollInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Target.Kind == "" {
		c.Target.Kind = defaults.Target.Kind
	}
	if c.Target.Arch == "" {
		c.Target.Arch = defaults.Target.Arch
	}

	if c.Regmaps.Pattern == "" {
		c.Regmaps.Pattern = defaults.Regmaps.Pattern
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = defaults.Metrics.Listen
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.History.Path == "" {
		c.History.Path = defaults.History.Path
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("GDBSTUB_TRANSPORT"); val != "" {
		c.Server.Transport = strings.ToLower(val)
	}
	if val := os.Getenv("GDBSTUB_LISTEN"); val != "" {
		c.Server.Listen = val
	}
	if val := os.Getenv("GDBSTUB_ARCH"); val != "" {
		c.Target.Arch = val
	}
	if val := os.Getenv("GDBSTUB_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}

	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid. Problems are reported
// together in a single ConfigError.
func (c *Config) Validate() error {
	errs := c.Problems()
	if len(errs) > 0 {
		return &stuberrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed:\n  - " + strings.Join(errs, "\n  - "),
			Cause:  ErrInvalidConfig,
		}
	}
	return nil
}

// Problems lists every validation failure, in field order.
func (c *Config) Problems() []string {
	var errs []string

	kind := transport.Kind(c.Server.Transport)
	if !slices.Contains(transport.Kinds(), kind) {
		errs = append(errs, fmt.Sprintf("server.transport must be one of %v, got %q", transport.Kinds(), c.Server.Transport))
	}
	switch kind {
	case transport.KindUnix:
		if c.Server.SocketPath == "" {
			errs = append(errs, "server.socket_path is required for the unix transport")
		}
	case transport.KindSerial:
		if c.Server.Serial.Port == "" {
			errs = append(errs, "server.serial.port is required for the serial transport")
		}
		if c.Server.Serial.Baud <= 0 {
			errs = append(errs, fmt.Sprintf("server.serial.baud must be positive, got %d", c.Server.Serial.Baud))
		}
	case transport.KindQUIC:
		if (c.Server.QUIC.TLSCert == "") != (c.Server.QUIC.TLSKey == "") {
			errs = append(errs, "server.quic.tls_cert and server.quic.tls_key must be set together")
		}
	case transport.KindWS:
		if !strings.HasPrefix(c.Server.WS.Path, "/") {
			errs = append(errs, fmt.Sprintf("server.ws.path must start with /, got %q", c.Server.WS.Path))
		}
	}
	if c.Server.MaxPacketSize < 64 {
		errs = append(errs, fmt.Sprintf("server.max_packet_size must be at least 64, got %d", c.Server.MaxPacketSize))
	}
	if c.Server.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("server.poll_interval must be positive, got %v", c.Server.PollInterval))
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be one of trace, debug, info, warn, error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text", "auto":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be one of json, text, auto, got %q", c.Log.Format))
	}

	if c.Target.Kind != DefaultTargetKind {
		errs = append(errs, fmt.Sprintf("target.kind must be %q, got %q", DefaultTargetKind, c.Target.Kind))
	}
	if c.Target.MemorySize < 0 {
		errs = append(errs, fmt.Sprintf("target.memory_size must not be negative, got %d", c.Target.MemorySize))
	}
	if _, err := c.Target.Conditions(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if c.Tracing.Enabled {
		tc := c.Tracing.Options()
		if err := tc.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("tracing: %v", err))
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	return errs
}

// Conditions parses BreakConditions keys as addresses. Keys accept a 0x
// prefix; bare keys are read as hex.
func (t *TargetConfig) Conditions() (map[uint64]string, error) {
	if len(t.BreakConditions) == 0 {
		return nil, nil
	}
	out := make(map[uint64]string, len(t.BreakConditions))
	for key, cond := range t.BreakConditions {
		s := strings.TrimPrefix(strings.ToLower(key), "0x")
		addr, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("target.break_conditions: invalid address %q", key)
		}
		if strings.TrimSpace(cond) == "" {
			return nil, fmt.Errorf("target.break_conditions[%s]: empty condition", key)
		}
		out[addr] = cond
	}
	return out, nil
}

// Options converts the section to the tracing package's configuration.
func (t TracingConfig) Options() tracing.Config {
	return tracing.Config{
		Enabled:    t.Enabled,
		Exporter:   t.Exporter,
		Endpoint:   t.Endpoint,
		Insecure:   t.Insecure,
		SampleRate: t.SampleRate,
	}
}

// TransportConfig converts the server section to a transport configuration.
func (s ServerConfig) TransportConfig() transport.Config {
	return transport.Config{
		Kind:        transport.Kind(s.Transport),
		Address:     s.Listen,
		SocketPath:  s.SocketPath,
		SerialPort:  s.Serial.Port,
		Baud:        s.Serial.Baud,
		TLSCert:     s.QUIC.TLSCert,
		TLSKey:      s.QUIC.TLSKey,
		WSPath:      s.WS.Path,
		AllowRemote: s.AllowRemote,
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
