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
	"github.com/spf13/pflag"

	"github.com/tombee/gdbstub/internal/commands/shared"
)

// CommandMetadata describes a command in JSON help output.
type CommandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Long        string         `json:"long,omitempty"`
	Usage       string         `json:"usage"`
	Flags       []FlagMetadata `json:"flags,omitempty"`
	Examples    string         `json:"examples,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
	Group       string         `json:"group,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
}

// FlagMetadata describes a flag in JSON help output.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// HelpResponse is the JSON response for help command
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata `json:"commands,omitempty"`
	Command     *CommandMetadata  `json:"command,omitempty"`
	GlobalFlags []FlagMetadata    `json:"global_flags,omitempty"`
}

// NewHelpCommand creates a help command that can also describe the command
// tree as JSON.
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides detailed information about commands and their usage.

Run 'gdbstub help <command>' to see detailed help for a specific command.
Use --json to get machine-readable output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useJSON := shared.GetJSON() || jsonOutput

			if len(args) == 0 {
				if !useJSON {
					return rootCmd.Help()
				}
				resp := HelpResponse{
					JSONResponse: shared.NewJSONResponse("help"),
					Commands:     listCommands(rootCmd),
					GlobalFlags:  collectFlags(rootCmd.PersistentFlags()),
				}
				return shared.EmitJSON(cmd.OutOrStdout(), resp, "")
			}

			targetCmd, _, err := rootCmd.Find(args)
			if err != nil || targetCmd == rootCmd {
				return shared.NewUsageError(fmt.Sprintf("command %q not found", args[0]), err)
			}
			if !useJSON {
				return targetCmd.Help()
			}

			metadata := describeCommand(targetCmd)
			resp := HelpResponse{
				JSONResponse: shared.NewJSONResponse("help " + targetCmd.Name()),
				Command:      &metadata,
				GlobalFlags:  collectFlags(rootCmd.PersistentFlags()),
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp, "")
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func listCommands(rootCmd *cobra.Command) []CommandMetadata {
	commands := []CommandMetadata{}
	for _, c := range rootCmd.Commands() {
		if c.Hidden {
			continue
		}
		commands = append(commands, describeCommand(c))
	}
	return commands
}

func describeCommand(cmd *cobra.Command) CommandMetadata {
	metadata := CommandMetadata{
		Name:     cmd.Name(),
		Short:    cmd.Short,
		Long:     cmd.Long,
		Usage:    cmd.UseLine(),
		Examples: cmd.Example,
		Aliases:  cmd.Aliases,
		Flags:    collectFlags(cmd.LocalFlags()),
	}
	if cmd.Annotations != nil {
		metadata.Group = cmd.Annotations["group"]
	}

	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			metadata.Subcommands = append(metadata.Subcommands, sub.Name())
		}
	}

	return metadata
}

func collectFlags(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		flags = append(flags, FlagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Type:      flag.Value.Type(),
			Usage:     flag.Usage,
			Default:   flag.DefValue,
		})
	})
	return flags
}
