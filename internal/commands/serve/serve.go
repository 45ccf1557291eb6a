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

package serve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/daemon"
)

// serveFlags holds command-line overrides. Only flags the user set are applied.
type serveFlags struct {
	transport   string
	listen      string
	socket      string
	serialPort  string
	baud        int
	arch        string
	program     string
	base        string
	entry       string
	allowRemote bool
	metrics     string
	regmapDir   string
	watch       bool
	noHistory   bool
}

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	return newCommand(&serveFlags{})
}

func newCommand(f *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve debuggers over the configured transport",
		Long: `Start the stub and wait for a debugger to connect.

One debugger is served at a time. When it detaches or disconnects the stub
waits for the next one. The stub stops on SIGINT, SIGTERM, or when the
debugger kills the target.

Flags override the configuration file.`,
		Example: `  # Serve the simulated i486 on the default tcp address
  gdbstub serve

  # Serve a program image on a unix socket
  gdbstub serve --transport unix --socket /tmp/gdbstub.sock --program ./boot.bin --base 0x1000

  # Serve over a serial line
  gdbstub serve --transport serial --serial-port /dev/ttyUSB0 --baud 115200`,
		Args: cobra.NoArgs,
		Annotations: map[string]string{
			"group": "debugging",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.transport, "transport", "t", "", "Transport: tcp, unix, serial, quic, ws")
	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Listen address for tcp, quic and ws")
	cmd.Flags().StringVar(&f.socket, "socket", "", "Unix socket path")
	cmd.Flags().StringVar(&f.serialPort, "serial-port", "", "Serial device")
	cmd.Flags().IntVar(&f.baud, "baud", 0, "Serial baud rate")
	cmd.Flags().StringVar(&f.arch, "arch", "", "Target architecture")
	cmd.Flags().StringVar(&f.program, "program", "", "Raw program image loaded into target memory")
	cmd.Flags().StringVar(&f.base, "base", "", "Client address of the first memory byte (e.g. 0x1000)")
	cmd.Flags().StringVar(&f.entry, "entry", "", "Initial program counter")
	cmd.Flags().BoolVar(&f.allowRemote, "allow-remote", false, "Accept tcp debuggers from non-loopback addresses")
	cmd.Flags().StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&f.regmapDir, "regmap-dir", "", "Directory of register map files")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Reload register maps when files change")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record sessions")

	return cmd
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	overrides, err := f.overrides(cmd)
	if err != nil {
		return err
	}

	v, c, b := shared.GetVersion()
	err = daemon.Run(cmd.Context(), daemon.RunOptions{
		Version:    v,
		Commit:     c,
		BuildDate:  b,
		ConfigPath: shared.GetConfigPath(),
		Overrides:  overrides,
	})
	if err != nil {
		return shared.Classify("serve failed", err)
	}
	return nil
}

// overrides parses flag values up front so a bad address fails before the
// config is loaded.
func (f *serveFlags) overrides(cmd *cobra.Command) (func(*config.Config), error) {
	changed := cmd.Flags().Changed

	var base, entry uint64
	var err error
	if changed("base") {
		if base, err = parseAddress("base", f.base); err != nil {
			return nil, err
		}
	}
	if changed("entry") {
		if entry, err = parseAddress("entry", f.entry); err != nil {
			return nil, err
		}
	}

	return func(cfg *config.Config) {
		if changed("transport") {
			cfg.Server.Transport = strings.ToLower(f.transport)
		}
		if changed("listen") {
			cfg.Server.Listen = f.listen
		}
		if changed("socket") {
			cfg.Server.SocketPath = f.socket
		}
		if changed("serial-port") {
			cfg.Server.Serial.Port = f.serialPort
		}
		if changed("baud") {
			cfg.Server.Serial.Baud = f.baud
		}
		if changed("allow-remote") {
			cfg.Server.AllowRemote = f.allowRemote
		}
		if changed("arch") {
			cfg.Target.Arch = f.arch
		}
		if changed("program") {
			cfg.Target.Program = f.program
		}
		if changed("base") {
			cfg.Target.BaseAddress = base
		}
		if changed("entry") {
			cfg.Target.Entry = entry
		}
		if changed("metrics") {
			cfg.Metrics.Enabled = f.metrics != ""
			cfg.Metrics.Listen = f.metrics
		}
		if changed("regmap-dir") {
			cfg.Regmaps.Dir = f.regmapDir
		}
		if changed("watch") {
			cfg.Regmaps.Watch = f.watch
		}
		if f.noHistory {
			cfg.History.Enabled = false
		}
	}, nil
}

func parseAddress(flag, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, shared.NewUsageError(fmt.Sprintf("invalid --%s %q: expected a number such as 0x1000", flag, s), err)
	}
	return v, nil
}
