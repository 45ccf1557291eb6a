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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/log"
)

// RunOptions configures daemon execution from the command line.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath selects a config file. Empty uses the XDG default when present.
	ConfigPath string

	// Overrides applies command-line flags on top of the loaded config.
	Overrides func(*config.Config)

	// Logger, when nil, is built from the config's log section.
	Logger *slog.Logger
}

// Run loads configuration, starts the daemon and blocks until SIGINT,
// SIGTERM or the target exits.
func Run(ctx context.Context, opts RunOptions) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if opts.Overrides != nil {
		opts.Overrides(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(LogConfig(cfg.Log))
		slog.SetDefault(logger)
	}

	if cfg.Server.AllowRemote {
		logger.Warn("allow_remote is enabled. The stub will accept debuggers from any network address and has no authentication.")
	}

	d, err := New(ctx, cfg, Options{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create daemon", log.Error(err))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := d.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*shutdownTimeout)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", log.Error(err))
	}

	if runErr != nil {
		logger.Error("Daemon error", log.Error(runErr))
		return fmt.Errorf("daemon error: %w", runErr)
	}
	return nil
}

// LogConfig converts the config's log section for the log package.
func LogConfig(lc config.LogConfig) *log.Config {
	cfg := log.FromEnv()
	// GDBSTUB_DEBUG and GDBSTUB_LOG_LEVEL win over the file.
	if os.Getenv("GDBSTUB_DEBUG") == "" && os.Getenv("GDBSTUB_LOG_LEVEL") == "" {
		cfg.Level = lc.Level
	}
	cfg.Format = log.Format(lc.Format)
	cfg.AddSource = cfg.AddSource || lc.AddSource
	return cfg
}
