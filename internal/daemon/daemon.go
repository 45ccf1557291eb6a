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

// Package daemon wires the configured transport, target, register maps and
// observability into a running stub.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/gdbserver"
	"github.com/tombee/gdbstub/internal/history"
	internallog "github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/metrics"
	"github.com/tombee/gdbstub/internal/regmap"
	"github.com/tombee/gdbstub/internal/target/sim"
	"github.com/tombee/gdbstub/internal/tracing"
	"github.com/tombee/gdbstub/internal/transport"
)

// shutdownTimeout bounds flushing spans and closing the history database.
const shutdownTimeout = 5 * time.Second

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Daemon runs one stub: a listener, the server loop and its helpers.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	maps    atomic.Pointer[regmap.Set]
	target  *sim.Target
	history *history.Store
	tracer  *tracing.Provider

	ready chan struct{}
	addr  string
	srv   *gdbserver.Server

	mu      sync.Mutex
	started bool
}

// New loads the register maps, creates the target and opens the history
// database. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := internallog.WithComponent(opts.Logger, "daemon")

	d := &Daemon{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		ready:  make(chan struct{}),
	}

	maps, err := loadMaps(cfg.Regmaps, opts.Logger)
	if err != nil {
		return nil, err
	}
	d.maps.Store(maps)

	t, err := NewTarget(cfg.Target, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create target: %w", err)
	}
	d.target = t

	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session history: %w", err)
		}
		d.history = store
	}

	return d, nil
}

// Maps returns the register maps new sessions use.
func (d *Daemon) Maps() *regmap.Set {
	return d.maps.Load()
}

// Target returns the debugged target.
func (d *Daemon) Target() *sim.Target {
	return d.target
}

// Ready is closed once the listener is accepting.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the listener address. It is empty before Ready closes.
func (d *Daemon) Addr() string {
	select {
	case <-d.ready:
		return d.addr
	default:
		return ""
	}
}

// Sessions returns the number of debugger connections served.
func (d *Daemon) Sessions() int64 {
	if d.srv == nil {
		return 0
	}
	return d.srv.Sessions()
}

// Start listens and serves debuggers until ctx is cancelled or the target
// exits. The metrics endpoint and the register map watcher run alongside
// and stop with the server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	if d.cfg.Tracing.Enabled {
		tc := d.cfg.Tracing.Options()
		tc.ServiceVersion = d.opts.Version
		provider, err := tracing.New(ctx, tc)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		d.tracer = provider
	}

	tc := d.cfg.Server.TransportConfig()
	tc.Logger = d.opts.Logger
	if tc.Kind == transport.KindUnix {
		if err := os.MkdirAll(filepath.Dir(tc.SocketPath), 0700); err != nil {
			return fmt.Errorf("failed to create socket directory: %w", err)
		}
	}
	ln, err := transport.Listen(ctx, tc)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	scfg := gdbserver.ServerConfig{
		Listener: ln,
		Target:   d.target,
		Maps:     d.Maps,
		Session: gdbserver.SessionConfig{
			Transport:     string(tc.Kind),
			PollInterval:  d.cfg.Server.PollInterval,
			MaxPacketSize: d.cfg.Server.MaxPacketSize,
		},
		Logger: d.opts.Logger,
	}
	// A nil *history.Store must not become a non-nil Recorder.
	if d.history != nil {
		scfg.Recorder = d.history
	}
	d.srv = gdbserver.NewServer(scfg)

	var watcher *regmap.Watcher
	if d.cfg.Regmaps.Watch && d.cfg.Regmaps.Dir != "" {
		watcher, err = regmap.NewWatcher(d.cfg.Regmaps.Dir, d.cfg.Regmaps.Pattern, d.reloadMaps, d.opts.Logger)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to watch register maps: %w", err)
		}
		watcher.OnError(func(error) { metrics.RegmapReload(false) })
	}

	d.addr = ln.Addr()
	close(d.ready)

	d.logger.Info("gdbstub starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", d.addr),
		slog.String(internallog.TransportKey, string(tc.Kind)),
		slog.String(internallog.ArchKey, d.target.Arch()))

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		// The helpers below have nothing to do once the server is done.
		defer stop()
		defer ln.Close()
		return d.srv.Serve(serveCtx)
	})

	if d.cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(serveCtx, d.cfg.Metrics.Listen, internallog.WithComponent(d.opts.Logger, "metrics"))
		})
	}

	if watcher != nil {
		g.Go(func() error {
			err := watcher.Run(serveCtx)
			if stopErr := watcher.Stop(); stopErr != nil {
				d.logger.Warn("failed to stop register map watcher", internallog.Error(stopErr))
			}
			return err
		})
	}

	return g.Wait()
}

func (d *Daemon) reloadMaps(set *regmap.Set) {
	d.maps.Store(set)
	metrics.RegmapReload(true)
	d.logger.Info("register maps updated", slog.Int("maps", set.Len()))
}

// Shutdown flushes spans and closes the history database.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := d.tracer.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("OpenTelemetry provider shutdown error", internallog.Error(err))
		}
		d.tracer = nil
	}

	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Error("failed to close session history", internallog.Error(err))
		}
		d.history = nil
	}

	d.started = false
	d.logger.Info("gdbstub stopped")
	return nil
}

func loadMaps(cfg config.RegmapsConfig, logger *slog.Logger) (*regmap.Set, error) {
	if cfg.Dir == "" {
		return regmap.Builtin(), nil
	}
	set, err := regmap.Load(cfg.Dir, cfg.Pattern, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load register maps from %s: %w", cfg.Dir, err)
	}
	return set, nil
}
