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

// Package target defines the capability interface a debug session drives:
// register state, memory, breakpoints, watchpoints and run control.
package target

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Target implementations.
var (
	// ErrOutOfRange is returned for memory accesses outside the mapped window.
	ErrOutOfRange = errors.New("target: offset out of range")

	// ErrRunning is returned when an operation needs a halted target.
	ErrRunning = errors.New("target: target is running")

	// ErrUnknownArch is returned when a target kind does not support an architecture.
	ErrUnknownArch = errors.New("target: unknown architecture")
)

// StateEntry describes one piece of CPU state the target exposes.
type StateEntry struct {
	// Symbol is the target's name for the state, e.g. "EAX" or "PC".
	Symbol string

	// Index is the opaque handle passed to ReadState and WriteState.
	Index int

	// Size is the width of the value in bytes.
	Size int
}

// WatchKind is the access type a watchpoint fires on.
type WatchKind int

const (
	// WatchWrite fires on stores.
	WatchWrite WatchKind = iota + 1
	// WatchRead fires on loads.
	WatchRead
	// WatchAccess fires on either.
	WatchAccess
)

// String returns the stop-reply keyword for the kind.
func (k WatchKind) String() string {
	switch k {
	case WatchWrite:
		return "watch"
	case WatchRead:
		return "rwatch"
	case WatchAccess:
		return "awatch"
	default:
		return fmt.Sprintf("watchkind(%d)", int(k))
	}
}

// Matches reports whether an access of the given direction fires a watchpoint of kind k.
func (k WatchKind) Matches(write bool) bool {
	switch k {
	case WatchAccess:
		return true
	case WatchWrite:
		return write
	case WatchRead:
		return !write
	}
	return false
}

// TriggerKind says what caused the last halt.
type TriggerKind int

const (
	// TriggerNone covers interrupts, single steps and halt instructions.
	TriggerNone TriggerKind = iota
	// TriggerBreakpoint is an execution breakpoint hit.
	TriggerBreakpoint
	// TriggerWatchpoint is a data watchpoint hit.
	TriggerWatchpoint
)

// Trigger records the breakpoint or watchpoint behind the most recent halt.
type Trigger struct {
	Kind TriggerKind

	// ID is the engine id returned by SetBreakpoint or SetWatchpoint.
	ID int

	// Watch and Offset are set for watchpoint triggers. Offset is the
	// translated offset the watchpoint was installed at.
	Watch  WatchKind
	Offset uint64
}

// Target is the execution engine behind a debug session.
//
// Run control is asynchronous: Resume and Step return immediately and the
// target announces each transition to halted on the Halted channel. An
// implementation discards any unread notification when it is resumed, so a
// receive after Resume always belongs to that run.
type Target interface {
	// Arch returns the architecture name used to select a register map.
	Arch() string

	// BigEndian reports the byte order of target memory.
	BigEndian() bool

	// State enumerates the CPU state entries.
	State() []StateEntry

	// ReadState returns the value behind a state handle.
	ReadState(index int) uint64

	// WriteState stores a value behind a state handle.
	WriteState(index int, value uint64)

	// Translate maps a client address to a target offset.
	Translate(addr uint64) (uint64, bool)

	// ReadMemory reads n bytes at a translated offset.
	ReadMemory(offset uint64, n int) ([]byte, error)

	// WriteMemory writes data at a translated offset.
	WriteMemory(offset uint64, data []byte) error

	// SetBreakpoint installs an execution breakpoint and returns its id.
	SetBreakpoint(addr uint64) int

	// ClearBreakpoint removes a breakpoint. It returns false if id is unknown.
	ClearBreakpoint(id int) bool

	// SetWatchpoint installs a watchpoint over [offset, offset+length).
	SetWatchpoint(kind WatchKind, offset uint64, length int) int

	// ClearWatchpoint removes a watchpoint. It returns false if id is unknown.
	ClearWatchpoint(id int) bool

	// Resume lets the target run until something halts it.
	Resume()

	// Step executes one instruction and halts.
	Step()

	// Halt stops a running target. It is a no-op on a halted target.
	Halt()

	// Running reports whether the target is executing.
	Running() bool

	// Halted delivers one notification per transition to halted.
	Halted() <-chan struct{}

	// Triggered returns what caused the most recent halt.
	Triggered() Trigger

	// ScheduleExit asks the target to shut down once it is resumed.
	ScheduleExit()
}

// Exiter is implemented by targets that can report their own shutdown.
type Exiter interface {
	// Exited is closed once the target has shut down.
	Exited() <-chan struct{}
}
