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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/transport"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	shared.JSONResponse
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate configuration file",
		Long: `Validate a configuration file without starting the stub.

Checks performed:
  - YAML syntax and structure
  - Transport settings are complete for the selected transport
  - Log, target, metrics, tracing and history settings are valid
  - Break condition addresses parse

Settings that work but are risky are reported as warnings.
With --strict, warnings are treated as errors.`,
		Example: `  # Validate the default configuration file
  gdbstub config validate

  # Validate another file with warnings as errors
  gdbstub config validate ./lab.yaml --strict

  # Get validation result as JSON
  gdbstub config validate --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = resolvePath(); err != nil {
					return err
				}
			}
			result := runValidate(path)
			return outputValidationResult(cmd, result, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// runValidate loads path and collects errors and warnings.
func runValidate(path string) ValidationResult {
	result := ValidationResult{
		JSONResponse: shared.NewJSONResponse("config validate"),
		Path:         path,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.Errors = []string{fmt.Sprintf("No configuration file found at %s. Run 'gdbstub config init' to create one.", path)}
		return result
	}

	cfg, err := config.Read(path)
	if err != nil {
		result.Errors = []string{err.Error()}
		return result
	}

	result.Errors = cfg.Problems()
	result.Warnings = warnings(cfg)
	result.Valid = len(result.Errors) == 0
	return result
}

// warnings reports settings that are valid but probably unintended.
func warnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.Server.AllowRemote {
		warnings = append(warnings, "server.allow_remote is enabled; any host that can reach the port can control the target")
	}
	if cfg.Server.Transport == string(transport.KindQUIC) && cfg.Server.QUIC.TLSCert == "" {
		warnings = append(warnings, "quic uses a self-signed certificate generated at startup")
	}
	if cfg.Server.MaxPacketSize > 1<<20 {
		warnings = append(warnings, fmt.Sprintf("server.max_packet_size %d is unusually large", cfg.Server.MaxPacketSize))
	}
	if cfg.Regmaps.Dir != "" {
		if _, err := os.Stat(cfg.Regmaps.Dir); os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("regmaps.dir %s does not exist; only built-in maps will be used", cfg.Regmaps.Dir))
		}
	} else if cfg.Regmaps.Watch {
		warnings = append(warnings, "regmaps.watch has no effect without regmaps.dir")
	}
	if cfg.Target.Program != "" {
		if _, err := os.Stat(cfg.Target.Program); err != nil {
			warnings = append(warnings, fmt.Sprintf("target.program %s is not readable", cfg.Target.Program))
		}
	}
	if cfg.Tracing.Enabled && cfg.Tracing.SampleRate == 0 {
		warnings = append(warnings, "tracing is enabled with sample_rate 0; no sessions will be traced")
	}

	return warnings
}

// outputValidationResult outputs the validation result and returns appropriate exit code.
func outputValidationResult(cmd *cobra.Command, result ValidationResult, strict bool) error {
	failed := !result.Valid || (strict && len(result.Warnings) > 0)
	result.Success = !failed

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSON(out, result, ""); err != nil {
			return err
		}
	} else {
		// Human-readable output
		if result.Valid {
			fmt.Fprintln(out, shared.RenderOK("Configuration is valid: "+result.Path))
		} else {
			fmt.Fprintln(out, shared.RenderError("Configuration validation failed: "+result.Path))
		}

		if len(result.Errors) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, shared.Header.Render("Errors:"))
			for _, err := range result.Errors {
				fmt.Fprintf(out, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
			}
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, shared.Header.Render("Warnings:"))
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), w)
			}
		}
	}

	if !failed {
		return nil
	}
	if !result.Valid {
		return shared.NewConfigError(fmt.Sprintf("configuration has %d error(s)", len(result.Errors)), config.ErrInvalidConfig)
	}
	return shared.NewConfigError(fmt.Sprintf("configuration has %d warning(s) (--strict)", len(result.Warnings)), nil)
}
