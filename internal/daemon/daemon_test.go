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

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/gdbserver"
	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/rsp/client"
	"github.com/tombee/gdbstub/internal/transport"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.Target.ClockHz = -1
	return cfg
}

// startDaemon runs d.Start in the background and waits for the listener.
func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	d, err := New(ctx, cfg, Options{Version: "test", Logger: log.Discard()})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("daemon exited before listening: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not start listening")
	}

	t.Cleanup(func() {
		cancel()
		_ = d.Shutdown(context.Background())
	})
	return d, cancel, errCh
}

func dial(t *testing.T, d *Daemon) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, transport.KindTCP, d.Addr(), client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDaemon_ServesAndRecordsSessions(t *testing.T) {
	d, cancel, errCh := startDaemon(t, testConfig(t))
	ctx := context.Background()

	c := dial(t, d)
	reply, err := c.Exchange(ctx, "?")
	require.NoError(t, err)
	assert.True(t, len(reply) >= 3 && reply[:3] == "T05", "unexpected stop reply %q", reply)

	reply, err = c.Exchange(ctx, "qSupported")
	require.NoError(t, err)
	assert.Contains(t, reply, "PacketSize=4000")

	reply, err = c.Exchange(ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)

	require.Eventually(t, func() bool {
		sessions, err := d.history.List(ctx, 10)
		return err == nil && len(sessions) == 1
	}, 5*time.Second, 20*time.Millisecond)

	sessions, err := d.history.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, gdbserver.EndDetach, sessions[0].Reason)
	assert.Equal(t, "tcp", sessions[0].Transport)
	assert.Equal(t, "i486", sessions[0].Arch)
	assert.Equal(t, 3, sessions[0].Commands)
	assert.Equal(t, int64(1), d.Sessions())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

func TestDaemon_StopsWhenTargetKilled(t *testing.T) {
	d, _, errCh := startDaemon(t, testConfig(t))

	c := dial(t, d)
	require.NoError(t, c.Send(context.Background(), "k"))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after kill")
	}
}

func TestDaemon_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = false

	d, _, _ := startDaemon(t, cfg)
	assert.Nil(t, d.history)

	c := dial(t, d)
	reply, err := c.Exchange(context.Background(), "qC")
	require.NoError(t, err)
	assert.Equal(t, "QC1", reply)

	_, err = os.Stat(cfg.History.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestDaemon_ReloadsRegisterMaps(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Regmaps.Dir = dir
	cfg.Regmaps.Watch = true

	d, _, _ := startDaemon(t, cfg)

	m, err := d.Maps().Lookup("i486")
	require.NoError(t, err)
	assert.Equal(t, "builtin", m.Source)

	path := filepath.Join(dir, "i486.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`schema: "1.0"
arch: i486
architecture: i386
feature: org.gnu.gdb.i386.core
registers:
  - {state: EAX, name: eax, number: 0}
  - {state: EIP, name: eip, number: 8, stop_report: true, type: code_ptr}
`), 0o600))

	require.Eventually(t, func() bool {
		m, err := d.Maps().Lookup("i486")
		return err == nil && m.Source != "builtin"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDaemon_StartTwice(t *testing.T) {
	d, _, _ := startDaemon(t, testConfig(t))
	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestDaemon_UnixSocket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Transport = "unix"
	cfg.Server.SocketPath = filepath.Join(t.TempDir(), "run", "stub.sock")

	startDaemon(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, transport.KindUnix, cfg.Server.SocketPath)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Exchange(ctx, "qfThreadInfo")
	require.NoError(t, err)
	assert.Equal(t, "m1", reply)
}

func TestNewTarget(t *testing.T) {
	t.Run("loads program", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prog.bin")
		require.NoError(t, os.WriteFile(path, []byte{0x90, 0x40, 0xF4}, 0o600))

		tgt, err := NewTarget(config.TargetConfig{
			Kind:        "sim",
			Arch:        "i486",
			BaseAddress: 0x1000,
			Program:     path,
		}, log.Discard())
		require.NoError(t, err)

		off, ok := tgt.Translate(0x1000)
		require.True(t, ok)
		mem, err := tgt.ReadMemory(off, 3)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x90, 0x40, 0xF4}, mem)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := NewTarget(config.TargetConfig{Kind: "jtag"}, log.Discard())
		var nf *stuberrors.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "jtag", nf.ID)
	})

	t.Run("missing program", func(t *testing.T) {
		_, err := NewTarget(config.TargetConfig{
			Kind:    "sim",
			Program: filepath.Join(t.TempDir(), "missing.bin"),
		}, log.Discard())
		require.Error(t, err)
	})

	t.Run("condition", func(t *testing.T) {
		_, err := NewTarget(config.TargetConfig{
			Kind:            "sim",
			BreakConditions: map[string]string{"0x0": "eax >"},
		}, log.Discard())
		require.Error(t, err)
	})
}

func TestLogConfig(t *testing.T) {
	t.Setenv("GDBSTUB_DEBUG", "")
	t.Setenv("GDBSTUB_LOG_LEVEL", "")

	cfg := LogConfig(config.LogConfig{Level: "warn", Format: "text"})
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, log.FormatText, cfg.Format)

	t.Setenv("GDBSTUB_LOG_LEVEL", "trace")
	cfg = LogConfig(config.LogConfig{Level: "warn", Format: "json"})
	assert.Equal(t, "trace", cfg.Level)
}
