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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for gdbstub
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdbstub",
		Short: "gdbstub - a GDB remote serial protocol stub",
		Long: `gdbstub lets GDB debug a target over the remote serial protocol.
It serves one debugger at a time over tcp, a unix socket, a serial line,
quic or a websocket, and translates GDB's register and memory requests to
the target through a configurable register map.

Run 'gdbstub config init' to write a configuration file.
Run 'gdbstub serve' and then 'target remote 127.0.0.1:2159' in GDB.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/gdbstub/config.yaml)")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// AddCommands attaches subcommands and rejects duplicates.
func AddCommands(root *cobra.Command, cmds ...*cobra.Command) error {
	seen := make(map[string]bool)
	for _, c := range root.Commands() {
		seen[c.Name()] = true
	}
	for _, c := range cmds {
		if seen[c.Name()] {
			return fmt.Errorf("duplicate command %q", c.Name())
		}
		seen[c.Name()] = true
		root.AddCommand(c)
	}
	return nil
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
