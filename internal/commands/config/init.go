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
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/cli/prompt"
	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/target/sim"
	"github.com/tombee/gdbstub/internal/transport"
)

func newConfigInitCommand(p prompt.Prompter) *cobra.Command {
	var (
		defaults bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `Write a configuration file, asking for the transport, target and
optional features.

With --defaults no questions are asked and the default configuration is
written. An existing file is only replaced with --force.`,
		Example: `  # Answer a few questions
  gdbstub config init

  # Write defaults to a custom location
  gdbstub config init --defaults --config ./gdbstub.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if !defaults {
				if !p.IsInteractive() {
					return shared.NewUsageError("config init needs a terminal; use --defaults to write the default configuration", prompt.ErrNotInteractive)
				}
				if err := ask(cmd, p, cfg); err != nil {
					return err
				}
			}

			if err := cfg.Validate(); err != nil {
				return shared.NewConfigError("the answers do not form a valid configuration", err)
			}

			path, err := config.Write(shared.GetConfigPath(), cfg, force)
			if err != nil {
				if errors.Is(err, config.ErrExists) {
					return shared.NewUsageError("configuration file already exists; use --force to replace it", err)
				}
				return shared.NewConfigError("failed to write configuration", err)
			}

			if shared.GetJSON() {
				resp := struct {
					shared.JSONResponse
					Path string `json:"path"`
				}{shared.NewJSONResponse("config init"), path}
				return shared.EmitJSON(cmd.OutOrStdout(), resp, "")
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Wrote "+path))
				fmt.Fprintln(cmd.OutOrStdout(), shared.Muted.Render("Start the stub with 'gdbstub serve'."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write the default configuration without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing configuration file")

	return cmd
}

// ask fills cfg from the user's answers.
func ask(cmd *cobra.Command, p prompt.Prompter, cfg *config.Config) error {
	ctx := cmd.Context()

	kinds := make([]string, 0, len(transport.Kinds()))
	for _, k := range transport.Kinds() {
		kinds = append(kinds, string(k))
	}
	kind, err := p.Select(ctx, "Transport:", kinds, cfg.Server.Transport)
	if err != nil {
		return err
	}
	cfg.Server.Transport = kind

	switch transport.Kind(kind) {
	case transport.KindTCP, transport.KindQUIC, transport.KindWS:
		if cfg.Server.Listen, err = p.Input(ctx, "Listen address:", cfg.Server.Listen, required); err != nil {
			return err
		}
	case transport.KindUnix:
		if cfg.Server.SocketPath, err = p.Input(ctx, "Socket path:", cfg.Server.SocketPath, required); err != nil {
			return err
		}
	case transport.KindSerial:
		if cfg.Server.Serial.Port, err = p.Input(ctx, "Serial device:", "/dev/ttyUSB0", required); err != nil {
			return err
		}
		baud, err := p.Input(ctx, "Baud rate:", strconv.Itoa(cfg.Server.Serial.Baud), positiveInt)
		if err != nil {
			return err
		}
		cfg.Server.Serial.Baud, _ = strconv.Atoi(baud)
	}

	if cfg.Target.Arch, err = p.Select(ctx, "Target architecture:", sim.Archs(), cfg.Target.Arch); err != nil {
		return err
	}

	if cfg.Regmaps.Dir, err = p.Input(ctx, "Register map directory (empty for built-in maps only):", "", nil); err != nil {
		return err
	}
	if cfg.Regmaps.Dir != "" {
		if cfg.Regmaps.Watch, err = p.Confirm(ctx, "Reload register maps when files change?", true); err != nil {
			return err
		}
	}

	if cfg.History.Enabled, err = p.Confirm(ctx, "Record sessions in the history database?", cfg.History.Enabled); err != nil {
		return err
	}

	if cfg.Metrics.Enabled, err = p.Confirm(ctx, "Serve Prometheus metrics?", false); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen, err = p.Input(ctx, "Metrics address:", cfg.Metrics.Listen, required); err != nil {
			return err
		}
	}

	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("a value is required")
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("%q is not a positive number", s)
	}
	return nil
}
