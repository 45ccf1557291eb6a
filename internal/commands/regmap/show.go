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

package regmap

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/regmap"
)

// RegisterInfo is one register in show output.
type RegisterInfo struct {
	Number     int    `json:"number"`
	Name       string `json:"name"`
	State      string `json:"state"`
	BitSize    int    `json:"bitsize,omitempty"`
	Type       string `json:"type"`
	StopReport bool   `json:"stop_report"`
	Bound      bool   `json:"bound"`
}

// ShowResponse is the JSON output of regmap show.
type ShowResponse struct {
	shared.JSONResponse
	Arch         string         `json:"arch"`
	Architecture string         `json:"architecture"`
	Feature      string         `json:"feature"`
	Source       string         `json:"source"`
	Registers    []RegisterInfo `json:"registers"`
	TargetXML    string         `json:"target_xml,omitempty"`
}

func newShowCommand() *cobra.Command {
	var dir, pattern, jq string
	var xml bool

	cmd := &cobra.Command{
		Use:   "show <arch>",
		Short: "Show the registers of one map",
		Long: `Show the registers of a map as the debugger would see them.

For simulated architectures each entry is bound to the simulator's state,
so widths are known and unbound entries are flagged. --xml prints the
target description document served to the debugger.`,
		Example: `  gdbstub regmap show i486
  gdbstub regmap show m68000 --xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet(dir, pattern)
			if err != nil {
				return err
			}
			m, err := set.Lookup(args[0])
			if err != nil {
				return shared.NewUsageError(fmt.Sprintf("no register map for %q (have %s)", args[0], strings.Join(set.Names(), ", ")), err)
			}

			resp := describe(m)
			catalog, simulated := catalogFor(m)
			if xml {
				if !simulated {
					return shared.NewUsageError(fmt.Sprintf("no simulated target for %q; the description needs register widths", m.Arch), nil)
				}
				if !shared.GetJSON() && jq == "" {
					fmt.Fprintln(cmd.OutOrStdout(), catalog.Description())
					return nil
				}
				resp.TargetXML = catalog.Description()
			}

			if shared.GetJSON() || jq != "" {
				return shared.EmitJSON(cmd.OutOrStdout(), resp, jq)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s, %s)\n", shared.Header.Render(resp.Arch), resp.Architecture, resp.Feature, resp.Source)

			t := table.New().
				Border(lipgloss.HiddenBorder()).
				Headers("NUM", "NAME", "STATE", "BITS", "TYPE", "STOP").
				StyleFunc(headerStyle)
			for _, r := range resp.Registers {
				bits := "-"
				if r.BitSize > 0 {
					bits = itoa(r.BitSize)
				}
				stop := ""
				if r.StopReport {
					stop = shared.SymbolOK
				}
				state := r.State
				if simulated && !r.Bound {
					state = shared.StatusWarn.Render(state + " (unbound)")
				}
				t.Row(itoa(r.Number), r.Name, state, bits, r.Type, stop)
			}
			fmt.Fprintln(out, t.Render())
			if !simulated {
				fmt.Fprintln(out, shared.Muted.Render("No simulated target for this architecture; widths are unknown."))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Register map directory (default: regmaps.dir from config)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob selecting map files below --dir")
	cmd.Flags().BoolVar(&xml, "xml", false, "Print the target description document")
	cmd.Flags().StringVar(&jq, "jq", "", "Apply a jq filter to JSON output (implies --json)")

	return cmd
}

// describe lists m's entries, adding widths for entries a simulated
// target can bind.
func describe(m *regmap.Map) ShowResponse {
	resp := ShowResponse{
		JSONResponse: shared.NewJSONResponse("regmap show"),
		Arch:         m.Arch,
		Architecture: m.Architecture,
		Feature:      m.Feature,
		Source:       sourceLabel(m),
	}

	bound := map[int]*regmap.Descriptor{}
	if catalog, ok := catalogFor(m); ok {
		for _, d := range catalog.Mapped() {
			bound[d.Number] = d
		}
	}

	for _, e := range m.Registers {
		typ := e.Type
		if typ == "" {
			typ = regmap.TypeInt
		}
		info := RegisterInfo{
			Number:     e.Number,
			Name:       e.Name,
			State:      e.State,
			Type:       string(typ),
			StopReport: e.StopReport,
		}
		if d, ok := bound[e.Number]; ok {
			info.BitSize = d.BitSize
			info.Bound = true
		}
		resp.Registers = append(resp.Registers, info)
	}
	return resp
}
