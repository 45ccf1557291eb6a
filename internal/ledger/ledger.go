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

// Package ledger records the breakpoints and watchpoints a debugger has
// inserted, and the mapping from translated watchpoint offsets back to the
// addresses the debugger asked for.
package ledger

import (
	"slices"

	"github.com/tombee/gdbstub/internal/target"
)

// Breakpoint is an inserted execution breakpoint.
type Breakpoint struct {
	// Address is the client-visible address.
	Address uint64
	// Kind is stored as received; it does not affect matching.
	Kind int
	// ID is the engine's handle.
	ID int
}

// Watchpoint is an inserted data watchpoint.
type Watchpoint struct {
	Kind   target.WatchKind
	Offset uint64
	Length int
	ID     int
}

// Ledger is owned by a single session and is not safe for concurrent use.
type Ledger struct {
	breakpoints []Breakpoint
	watchpoints []Watchpoint
	addresses   map[uint64]uint64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{addresses: make(map[uint64]uint64)}
}

// AddBreakpoint records an inserted breakpoint.
func (l *Ledger) AddBreakpoint(bp Breakpoint) {
	l.breakpoints = append(l.breakpoints, bp)
}

// FindBreakpoint returns the first breakpoint at exactly addr.
func (l *Ledger) FindBreakpoint(addr uint64) (Breakpoint, bool) {
	i := slices.IndexFunc(l.breakpoints, func(bp Breakpoint) bool { return bp.Address == addr })
	if i < 0 {
		return Breakpoint{}, false
	}
	return l.breakpoints[i], true
}

// RemoveBreakpoint drops the entry with the given engine id.
func (l *Ledger) RemoveBreakpoint(id int) {
	l.breakpoints = slices.DeleteFunc(l.breakpoints, func(bp Breakpoint) bool { return bp.ID == id })
}

// AddWatchpoint records an inserted watchpoint.
func (l *Ledger) AddWatchpoint(wp Watchpoint) {
	l.watchpoints = append(l.watchpoints, wp)
}

// FindWatchpoint returns the first watchpoint matching kind, offset and length.
func (l *Ledger) FindWatchpoint(kind target.WatchKind, offset uint64, length int) (Watchpoint, bool) {
	i := slices.IndexFunc(l.watchpoints, func(wp Watchpoint) bool {
		return wp.Kind == kind && wp.Offset == offset && wp.Length == length
	})
	if i < 0 {
		return Watchpoint{}, false
	}
	return l.watchpoints[i], true
}

// RemoveWatchpoint drops the entry with the given engine id.
func (l *Ledger) RemoveWatchpoint(id int) {
	l.watchpoints = slices.DeleteFunc(l.watchpoints, func(wp Watchpoint) bool { return wp.ID == id })
}

// MapAddress remembers which client address a translated offset came from.
func (l *Ledger) MapAddress(offset, addr uint64) {
	l.addresses[offset] = addr
}

// UnmapAddress forgets the mapping for offset.
func (l *Ledger) UnmapAddress(offset uint64) {
	delete(l.addresses, offset)
}

// ClientAddress returns the client address recorded for offset.
func (l *Ledger) ClientAddress(offset uint64) (uint64, bool) {
	addr, ok := l.addresses[offset]
	return addr, ok
}

// Breakpoints returns a copy of the inserted breakpoints.
func (l *Ledger) Breakpoints() []Breakpoint {
	return slices.Clone(l.breakpoints)
}

// Watchpoints returns a copy of the inserted watchpoints.
func (l *Ledger) Watchpoints() []Watchpoint {
	return slices.Clone(l.watchpoints)
}
