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
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"strconv"
	"strings"
	"sync"

	"github.com/tombee/gdbstub/internal/target"
)

// ErrBadValue is returned when a register value on the wire cannot be parsed.
var ErrBadValue = errors.New("regmap: malformed register value")

// Descriptor is one register as the debugger sees it.
type Descriptor struct {
	Name       string
	Number     int
	BitSize    int
	Type       RegType
	StateIndex int
	StopReport bool
}

// HexWidth is the number of hex digits in the register's wire form.
func (d *Descriptor) HexWidth() int {
	return d.BitSize / 4
}

// Catalog is the per-session register table. It is immutable once built.
type Catalog struct {
	arch      string
	feature   string
	bigEndian bool

	// regs is indexed by register number; unmapped numbers hold nil.
	regs []*Descriptor
	stop []*Descriptor

	descOnce sync.Once
	desc     string
}

// Build binds m to the target's state entries. Entries whose state symbol
// the target lacks, or whose width is not 8, 16, 32 or 64 bits, are skipped
// with a log line.
func Build(m *Map, state []target.StateEntry, bigEndian bool, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	bySymbol := make(map[string]target.StateEntry, len(state))
	for _, e := range state {
		if _, dup := bySymbol[e.Symbol]; !dup {
			bySymbol[e.Symbol] = e
		}
	}

	c := &Catalog{
		arch:      m.Architecture,
		feature:   m.Feature,
		bigEndian: bigEndian,
	}
	if c.arch == "" {
		c.arch = m.Arch
	}

	for _, e := range m.Registers {
		st, ok := bySymbol[e.State]
		if !ok {
			logger.Info("could not find state for register", "register", e.Name, "state", e.State)
			continue
		}
		bitSize := st.Size * 8
		switch bitSize {
		case 8, 16, 32, 64:
		default:
			logger.Warn("unsupported register width", "register", e.Name, "bits", bitSize)
			continue
		}

		typ := e.Type
		if typ == "" {
			typ = TypeInt
		}
		d := &Descriptor{
			Name:       e.Name,
			Number:     e.Number,
			BitSize:    bitSize,
			Type:       typ,
			StateIndex: st.Index,
			StopReport: e.StopReport,
		}
		if e.Number >= len(c.regs) {
			grown := make([]*Descriptor, e.Number+1)
			copy(grown, c.regs)
			c.regs = grown
		}
		c.regs[e.Number] = d
	}

	for _, d := range c.regs {
		if d != nil && d.StopReport {
			c.stop = append(c.stop, d)
		}
	}

	for _, d := range c.regs {
		if d != nil {
			logger.Debug("register mapped",
				"number", d.Number,
				"state_index", d.StateIndex,
				"bits", d.BitSize,
				"type", string(d.Type),
				"name", d.Name,
			)
		}
	}

	return c
}

// Len is one past the highest mapped register number.
func (c *Catalog) Len() int {
	return len(c.regs)
}

// Lookup returns the descriptor for a register number. Numbers inside the
// table that have no register report false.
func (c *Catalog) Lookup(number int) (*Descriptor, bool) {
	if number < 0 || number >= len(c.regs) || c.regs[number] == nil {
		return nil, false
	}
	return c.regs[number], true
}

// Mapped returns the registers in ascending number order.
func (c *Catalog) Mapped() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.regs))
	for _, d := range c.regs {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// StopReport returns the always-report registers in ascending number order.
func (c *Catalog) StopReport() []*Descriptor {
	return c.stop
}

// BigEndian reports the byte order used for register values.
func (c *Catalog) BigEndian() bool {
	return c.bigEndian
}

// Format renders v as d's wire form: BitSize/4 lowercase hex digits in
// target memory order.
func (c *Catalog) Format(d *Descriptor, v uint64) string {
	v = c.toWire(d, mask(v, d.BitSize))
	s := strconv.FormatUint(v, 16)
	if pad := d.HexWidth() - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return s
}

// Parse reads exactly d.HexWidth() hex digits and returns the register value.
func (c *Catalog) Parse(d *Descriptor, s string) (uint64, error) {
	if len(s) != d.HexWidth() {
		return 0, fmt.Errorf("%w: %s wants %d digits, got %d", ErrBadValue, d.Name, d.HexWidth(), len(s))
	}
	v, err := strconv.ParseUint(s, 16, d.BitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadValue, d.Name, s)
	}
	return c.toWire(d, v), nil
}

// toWire swaps bytes for little-endian targets. The swap is its own inverse.
func (c *Catalog) toWire(d *Descriptor, v uint64) uint64 {
	if c.bigEndian {
		return v
	}
	switch d.BitSize {
	case 64:
		return bits.ReverseBytes64(v)
	case 32:
		return uint64(bits.ReverseBytes32(uint32(v)))
	case 16:
		return uint64(bits.ReverseBytes16(uint16(v)))
	}
	return v
}

func mask(v uint64, bitSize int) uint64 {
	if bitSize >= 64 {
		return v
	}
	return v & (1<<uint(bitSize) - 1)
}
