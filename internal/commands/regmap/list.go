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

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/regmap"
)

// MapSummary describes one map in list output.
type MapSummary struct {
	Arch         string `json:"arch"`
	Architecture string `json:"architecture"`
	Feature      string `json:"feature"`
	Registers    int    `json:"registers"`
	Source       string `json:"source"`
}

// ListResponse is the JSON output of regmap list.
type ListResponse struct {
	shared.JSONResponse
	Maps []MapSummary `json:"maps"`
}

func newListCommand() *cobra.Command {
	var dir, pattern, jq string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available register maps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadSet(dir, pattern)
			if err != nil {
				return err
			}

			resp := ListResponse{JSONResponse: shared.NewJSONResponse("regmap list")}
			for _, name := range set.Names() {
				m, _ := set.Lookup(name)
				resp.Maps = append(resp.Maps, MapSummary{
					Arch:         m.Arch,
					Architecture: m.Architecture,
					Feature:      m.Feature,
					Registers:    len(m.Registers),
					Source:       sourceLabel(m),
				})
			}

			if shared.GetJSON() || jq != "" {
				return shared.EmitJSON(cmd.OutOrStdout(), resp, jq)
			}

			t := table.New().
				Border(lipgloss.HiddenBorder()).
				Headers("ARCH", "ARCHITECTURE", "REGISTERS", "SOURCE").
				StyleFunc(headerStyle)
			for _, m := range resp.Maps {
				t.Row(m.Arch, m.Architecture, itoa(m.Registers), m.Source)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Register map directory (default: regmaps.dir from config)")
	cmd.Flags().StringVar(&pattern, "pattern", "", fmt.Sprintf("Glob selecting map files below --dir (default: %s)", regmap.DefaultPattern))
	cmd.Flags().StringVar(&jq, "jq", "", "Apply a jq filter to JSON output (implies --json)")

	return cmd
}

func headerStyle(row, col int) lipgloss.Style {
	if row == table.HeaderRow {
		return shared.Header.PaddingRight(2)
	}
	return lipgloss.NewStyle().PaddingRight(2)
}
