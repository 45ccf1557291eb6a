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

// Package regmap implements the regmap command group.
package regmap

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tombee/gdbstub/internal/commands/shared"
	"github.com/tombee/gdbstub/internal/config"
	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/regmap"
	"github.com/tombee/gdbstub/internal/target/sim"
)

// NewCommand creates the regmap command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regmap",
		Short: "List, show and validate register maps",
		Long: `Register maps bind a target's state symbols to the register names and
numbers the debugger sees. Maps for i486 and m68000 are built in; files in
the configured regmaps directory replace them per architecture.`,
		Annotations: map[string]string{
			"group": "configuration",
		},
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

// loadSet returns the built-in maps overlaid with dir, or with the
// configured directory when dir is empty.
func loadSet(dir, pattern string) (*regmap.Set, error) {
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dir = cfg.Regmaps.Dir
		if pattern == "" {
			pattern = cfg.Regmaps.Pattern
		}
	}
	set, err := regmap.Load(dir, pattern, nil)
	if err != nil {
		return nil, shared.Classify("loading register maps", err)
	}
	return set, nil
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := shared.GetConfigPath(); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, shared.NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// catalogFor binds m to a simulated target's state. ok is false when the
// architecture has no simulator layout.
func catalogFor(m *regmap.Map) (*regmap.Catalog, bool) {
	tgt, err := sim.New(sim.Config{Arch: m.Arch, Logger: log.Discard()})
	if err != nil {
		return nil, false
	}
	return regmap.Build(m, tgt.State(), tgt.BigEndian(), log.Discard()), true
}

// unbound lists the entries of m the catalog dropped.
func unbound(m *regmap.Map, c *regmap.Catalog) []regmap.Entry {
	bound := make(map[int]bool)
	for _, d := range c.Mapped() {
		bound[d.Number] = true
	}
	var out []regmap.Entry
	for _, e := range m.Registers {
		if !bound[e.Number] {
			out = append(out, e)
		}
	}
	return out
}

func sourceLabel(m *regmap.Map) string {
	if m.Source == "" {
		return "builtin"
	}
	return m.Source
}

func itoa(n int) string { return strconv.Itoa(n) }

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
