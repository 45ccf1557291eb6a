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

package sim

import (
	"fmt"
	"strings"

	"github.com/tombee/gdbstub/internal/target"
)

// layout describes the CPU state of one simulated architecture.
type layout struct {
	name      string
	bigEndian bool
	state     []target.StateEntry

	// Indices of the registers the instruction set touches.
	acc int
	pc  int
	sp  int

	// reset holds power-on values keyed by state index.
	reset map[int]uint64
}

func newLayout(symbols []string, sizes map[string]int) []target.StateEntry {
	out := make([]target.StateEntry, len(symbols))
	for i, s := range symbols {
		size, ok := sizes[s]
		if !ok {
			size = 4
		}
		out[i] = target.StateEntry{Symbol: s, Index: i, Size: size}
	}
	return out
}

func indexOf(entries []target.StateEntry, symbol string) int {
	for _, e := range entries {
		if e.Symbol == symbol {
			return e.Index
		}
	}
	panic("sim: layout has no " + symbol)
}

func i486Layout() *layout {
	state := newLayout([]string{
		"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI",
		"EIP", "EFLAGS", "CS", "SS", "DS", "ES", "FS", "GS",
		"ST0", "ST1", "ST2", "ST3", "ST4", "ST5", "ST6", "ST7",
		"x87_CW", "x87_SW", "x87_TAG",
	}, map[string]int{
		"ST0": 8, "ST1": 8, "ST2": 8, "ST3": 8, "ST4": 8, "ST5": 8, "ST6": 8, "ST7": 8,
		"x87_CW": 2, "x87_SW": 2, "x87_TAG": 2,
	})
	return &layout{
		name:  "i486",
		state: state,
		acc:   indexOf(state, "EAX"),
		pc:    indexOf(state, "EIP"),
		sp:    indexOf(state, "ESP"),
		reset: map[int]uint64{
			indexOf(state, "EFLAGS"):  0x2,
			indexOf(state, "x87_CW"):  0x037f,
			indexOf(state, "x87_TAG"): 0xffff,
		},
	}
}

func m68000Layout() *layout {
	state := newLayout([]string{
		"D0", "D1", "D2", "D3", "D4", "D5", "D6", "D7",
		"A0", "A1", "A2", "A3", "A4", "A5", "A6", "SP",
		"SR", "PC",
	}, map[string]int{"SR": 2})
	return &layout{
		name:      "m68000",
		bigEndian: true,
		state:     state,
		acc:       indexOf(state, "D0"),
		pc:        indexOf(state, "PC"),
		sp:        indexOf(state, "SP"),
		reset: map[int]uint64{
			indexOf(state, "SR"): 0x2700,
		},
	}
}

// Archs lists the architectures the simulator implements.
func Archs() []string {
	return []string{"i486", "m68000"}
}

func lookupLayout(arch string) (*layout, error) {
	switch strings.ToLower(arch) {
	case "i486", "":
		return i486Layout(), nil
	case "m68000":
		return m68000Layout(), nil
	}
	return nil, fmt.Errorf("%w: %q (sim supports %s)", target.ErrUnknownArch, arch, strings.Join(Archs(), ", "))
}
