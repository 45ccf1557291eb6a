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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Transport != "tcp" {
		t.Errorf("expected transport tcp, got %q", cfg.Server.Transport)
	}
	if cfg.Server.Listen != "127.0.0.1:2159" {
		t.Errorf("expected listen 127.0.0.1:2159, got %q", cfg.Server.Listen)
	}
	if cfg.Server.MaxPacketSize != 16384 {
		t.Errorf("expected max packet size 16384, got %d", cfg.Server.MaxPacketSize)
	}
	if cfg.Server.PollInterval != 10*time.Millisecond {
		t.Errorf("expected poll interval 10ms, got %v", cfg.Server.PollInterval)
	}
	if cfg.Server.AllowRemote {
		t.Error("expected allow_remote false")
	}
	if cfg.Target.Arch != "i486" {
		t.Errorf("expected arch i486, got %q", cfg.Target.Arch)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled by default")
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("expected metrics listen 127.0.0.1:9464, got %q", cfg.Metrics.Listen)
	}
	if cfg.Regmaps.Pattern != "**/*.yaml" {
		t.Errorf("expected regmap pattern **/*.yaml, got %q", cfg.Regmaps.Pattern)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errText string
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown transport",
			modify:  func(c *Config) { c.Server.Transport = "carrier-pigeon" },
			wantErr: true,
			errText: "server.transport",
		},
		{
			name: "serial needs a port",
			modify: func(c *Config) {
				c.Server.Transport = "serial"
			},
			wantErr: true,
			errText: "server.serial.port",
		},
		{
			name: "serial with port",
			modify: func(c *Config) {
				c.Server.Transport = "serial"
				c.Server.Serial.Port = "/dev/ttyUSB0"
			},
			wantErr: false,
		},
		{
			name: "quic needs both key files",
			modify: func(c *Config) {
				c.Server.Transport = "quic"
				c.Server.QUIC.TLSCert = "cert.pem"
			},
			wantErr: true,
			errText: "tls_key",
		},
		{
			name: "ws path must be absolute",
			modify: func(c *Config) {
				c.Server.Transport = "ws"
				c.Server.WS.Path = "rsp"
			},
			wantErr: true,
			errText: "server.ws.path",
		},
		{
			name:    "packet size too small",
			modify:  func(c *Config) { c.Server.MaxPacketSize = 10 },
			wantErr: true,
			errText: "max_packet_size",
		},
		{
			name:    "negative poll interval",
			modify:  func(c *Config) { c.Server.PollInterval = -time.Second },
			wantErr: true,
			errText: "poll_interval",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
			errText: "log.level",
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			errText: "log.format",
		},
		{
			name:    "unknown target kind",
			modify:  func(c *Config) { c.Target.Kind = "jtag" },
			wantErr: true,
			errText: "target.kind",
		},
		{
			name: "bad break condition address",
			modify: func(c *Config) {
				c.Target.BreakConditions = map[string]string{"zz": "eax > 1"}
			},
			wantErr: true,
			errText: "break_conditions",
		},
		{
			name: "unknown tracing exporter",
			modify: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "zipkin"
			},
			wantErr: true,
			errText: "tracing",
		},
		{
			name: "tracing disabled ignores exporter",
			modify: func(c *Config) {
				c.Tracing.Exporter = "zipkin"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var ce *stuberrors.ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("expected ConfigError, got %T", err)
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig in chain")
				}
				if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("expected error containing %q, got %q", tt.errText, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  transport: unix
  socket_path: /tmp/stub.sock
  poll_interval: 25ms
target:
  arch: m68000
  memory_size: 4096
  base_address: 0x1000
  break_conditions:
    "0x1004": "d0 == 3"
regmaps:
  dir: ./maps
  watch: true
metrics:
  enabled: true
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Transport != "unix" {
		t.Errorf("expected transport unix, got %q", cfg.Server.Transport)
	}
	if cfg.Server.SocketPath != "/tmp/stub.sock" {
		t.Errorf("expected socket path /tmp/stub.sock, got %q", cfg.Server.SocketPath)
	}
	if cfg.Server.PollInterval != 25*time.Millisecond {
		t.Errorf("expected poll interval 25ms, got %v", cfg.Server.PollInterval)
	}
	if cfg.Target.Arch != "m68000" {
		t.Errorf("expected arch m68000, got %q", cfg.Target.Arch)
	}
	if cfg.Target.BaseAddress != 0x1000 {
		t.Errorf("expected base address 0x1000, got %#x", cfg.Target.BaseAddress)
	}
	if !cfg.Regmaps.Watch || cfg.Regmaps.Dir != "./maps" {
		t.Errorf("unexpected regmaps section: %+v", cfg.Regmaps)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled")
	}
	// Defaults fill the rest.
	if cfg.Server.MaxPacketSize != DefaultMaxPacketSize {
		t.Errorf("expected default max packet size, got %d", cfg.Server.MaxPacketSize)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected default log format json, got %q", cfg.Log.Format)
	}

	conds, err := cfg.Target.Conditions()
	if err != nil {
		t.Fatalf("Conditions() error = %v", err)
	}
	if conds[0x1004] != "d0 == 3" {
		t.Errorf("expected condition at 0x1004, got %v", conds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ce *stuberrors.ConfigError
	if !errors.As(err, &ce) || ce.Key != "config_file" {
		t.Errorf("expected config_file ConfigError, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GDBSTUB_TRANSPORT", "WS")
	t.Setenv("GDBSTUB_LISTEN", "127.0.0.1:9000")
	t.Setenv("GDBSTUB_ARCH", "m68000")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Transport != "ws" {
		t.Errorf("expected transport ws, got %q", cfg.Server.Transport)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("expected listen 127.0.0.1:9000, got %q", cfg.Server.Listen)
	}
	if cfg.Target.Arch != "m68000" {
		t.Errorf("expected arch m68000, got %q", cfg.Target.Arch)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("target:\n  arch: i486\n"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("GDBSTUB_ARCH", "m68000")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target.Arch != "m68000" {
		t.Errorf("expected env to win, got %q", cfg.Target.Arch)
	}
}

func TestConditions(t *testing.T) {
	tc := TargetConfig{BreakConditions: map[string]string{
		"0x10": "eax > 1",
		"20":   "ebx == 0",
	}}
	conds, err := tc.Conditions()
	if err != nil {
		t.Fatalf("Conditions() error = %v", err)
	}
	if conds[0x10] != "eax > 1" || conds[0x20] != "ebx == 0" {
		t.Errorf("unexpected conditions %v", conds)
	}

	tc.BreakConditions = map[string]string{"0x30": "  "}
	if _, err := tc.Conditions(); err == nil {
		t.Error("expected error for empty condition")
	}
}

func TestTransportConfig(t *testing.T) {
	cfg := Default()
	cfg.Server.Transport = "quic"
	cfg.Server.QUIC = QUICConfig{TLSCert: "c.pem", TLSKey: "k.pem"}
	cfg.Server.AllowRemote = true

	tc := cfg.Server.TransportConfig()
	if tc.Kind != "quic" || tc.TLSCert != "c.pem" || tc.TLSKey != "k.pem" || !tc.AllowRemote {
		t.Errorf("unexpected transport config %+v", tc)
	}
	if tc.Address != cfg.Server.Listen {
		t.Errorf("expected address %q, got %q", cfg.Server.Listen, tc.Address)
	}
}

func TestXDGPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if path != filepath.Join(tmpDir, "config", "gdbstub", "config.yaml") {
		t.Errorf("unexpected config path %q", path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("config dir was not created: %v", err)
	}
	if got := DefaultHistoryPath(); got != filepath.Join(tmpDir, "data", "gdbstub", "history.db") {
		t.Errorf("unexpected history path %q", got)
	}
}

func TestReadSkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  transport: serial\nlog:\n  level: loud\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject the config")
	}

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	problems := cfg.Problems()
	if len(problems) != 2 {
		t.Fatalf("Problems() = %v, want 2 entries", problems)
	}
	if !strings.Contains(problems[0], "server.serial.port") {
		t.Errorf("first problem = %q, want server.serial.port", problems[0])
	}
	if !strings.Contains(problems[1], "log.level") {
		t.Errorf("second problem = %q, want log.level", problems[1])
	}
}
