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
)

func TestWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := Default()
	cfg.Target.Arch = "m68000"
	cfg.Metrics.Enabled = true

	written, err := Write(configPath, cfg, false)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if written != configPath {
		t.Errorf("expected path %q, got %q", configPath, written)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat config file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected file permissions 0600, got %o", info.Mode().Perm())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if !strings.Contains(string(data), "arch: m68000") {
		t.Errorf("expected arch in output, got:\n%s", data)
	}
	if !strings.Contains(string(data), "poll_interval: 10ms") {
		t.Errorf("expected poll interval rendered as a duration, got:\n%s", data)
	}

	// The written file loads back.
	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Target.Arch != "m68000" || !loaded.Metrics.Enabled {
		t.Errorf("round trip lost settings: %+v", loaded)
	}

	// No temp file left behind.
	if _, err := os.Stat(configPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file was not cleaned up")
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: warn\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Write(configPath, Default(), false)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	if _, err := Write(configPath, Default(), true); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, _ := os.ReadFile(configPath)
	if strings.Contains(string(data), "level: warn") {
		t.Error("file was not overwritten")
	}
}

func TestFileLockRelease(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := f.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	// Unlock without a lock is a no-op.
	if err := f.Unlock(); err != nil {
		t.Fatalf("second Unlock failed: %v", err)
	}

	called := false
	if err := f.WithLock(func() error { called = true; return nil }); err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}
	if !called {
		t.Error("WithLock did not run the function")
	}
}
