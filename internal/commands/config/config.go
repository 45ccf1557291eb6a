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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/cli/prompt"
	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/config"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	return newConfigCommand(prompt.NewSurveyPrompter(shared.IsTerminal()))
}

func newConfigCommand(p prompt.Prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, view and check configuration",
		Long: `Create, view and check gdbstub configuration.

Subcommands:
  init     - Write a configuration file
  show     - Display the effective configuration
  path     - Show config file location
  validate - Check a configuration file`,
		Annotations: map[string]string{
			"group": "configuration",
		},
	}

	cmd.AddCommand(newConfigInitCommand(p))
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd, args)
	}

	return cmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration the stub would run with: the config file
with defaults filled in and environment overrides applied.

Use --json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}

	return cmd
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}

	return cmd
}

// resolvePath returns the --config path or the XDG default.
func resolvePath() (string, error) {
	if cfgPath := shared.GetConfigPath(); cfgPath != "" {
		return cfgPath, nil
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return "", shared.NewConfigError("failed to determine config path", err)
	}
	return cfgPath, nil
}

// runConfigShow displays the current configuration
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolvePath()
	if err != nil {
		return err
	}

	var cfg *config.Config
	source := cfgPath
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		cfg, err = config.LoadDefault()
		source = "defaults"
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return shared.NewConfigError("failed to load config", err)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, shared.Muted.Render("# "+source))
	fmt.Fprint(out, string(data))
	return nil
}

// runConfigPath displays the config file path
func runConfigPath(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolvePath()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	return nil
}
