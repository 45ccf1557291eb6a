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

// Package sim is a small simulated CPU that implements target.Target.
//
// Memory is a flat window at a base address. The instruction set is a
// handful of x86-flavoured opcodes operating on an accumulator, enough to
// exercise breakpoints, watchpoints and run control:
//
//	90          nop
//	40          increment accumulator
//	A1 imm32    load accumulator from [imm32]
//	A3 imm32    store accumulator to [imm32]
//	EB rel8     jump relative to the next instruction
//	F4          halt
//
// Immediates use the target's byte order. Any other opcode halts the CPU.
package sim

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/gdbstub/internal/target"
)

// Defaults for Config fields left zero.
const (
	DefaultMemorySize = 64 * 1024
	DefaultClockHz    = 1_000_000

	// clockBatch is the number of instructions charged against the clock at once.
	clockBatch = 1000
)

// Config configures a simulated target.
type Config struct {
	// Arch is "i486" (default) or "m68000".
	Arch string

	// MemorySize is the size of the memory window in bytes.
	MemorySize int

	// BaseAddress is the client address of the first memory byte.
	BaseAddress uint64

	// BigEndian overrides the architecture's byte order when set.
	BigEndian *bool

	// Program is copied into memory at Entry.
	Program []byte

	// Entry is the initial program counter. Zero selects BaseAddress.
	Entry uint64

	// ClockHz caps the instruction rate. Negative disables the cap.
	ClockHz int

	// Conditions maps breakpoint addresses to boolean expressions over the
	// registers. A breakpoint whose condition is false does not halt.
	Conditions map[uint64]string

	Logger *slog.Logger
}

type breakpoint struct {
	id   int
	addr uint64
}

type watchpoint struct {
	id     int
	kind   target.WatchKind
	offset uint64
	length int
}

// Target is a simulated CPU. All methods are safe for concurrent use.
type Target struct {
	layout    *layout
	bigEndian bool
	base      uint64
	conds     conditions
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu          sync.Mutex
	regs        []uint64
	mem         []byte
	breakpoints []breakpoint
	watchpoints []watchpoint
	nextID      int
	trigger     target.Trigger

	running bool
	stop    chan struct{}
	done    chan struct{}
	halted  chan struct{}

	exitScheduled bool
	exited        chan struct{}
	exitOnce      sync.Once
}

var _ target.Target = (*Target)(nil)
var _ target.Exiter = (*Target)(nil)

// New creates a halted target.
func New(cfg Config) (*Target, error) {
	l, err := lookupLayout(cfg.Arch)
	if err != nil {
		return nil, err
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultMemorySize
	}
	if cfg.ClockHz == 0 {
		cfg.ClockHz = DefaultClockHz
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	symbols := make([]string, len(l.state))
	for i, e := range l.state {
		symbols[i] = e.Symbol
	}
	conds, err := compileConditions(cfg.Conditions, symbols)
	if err != nil {
		return nil, err
	}

	t := &Target{
		layout:    l,
		bigEndian: l.bigEndian,
		base:      cfg.BaseAddress,
		conds:     conds,
		logger:    cfg.Logger.With("component", "sim", "arch", l.name),
		regs:      make([]uint64, len(l.state)),
		mem:       make([]byte, cfg.MemorySize),
		nextID:    1,
		halted:    make(chan struct{}, 1),
		exited:    make(chan struct{}),
	}
	if cfg.BigEndian != nil {
		t.bigEndian = *cfg.BigEndian
	}
	if cfg.ClockHz > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.ClockHz), clockBatch)
	}

	for idx, v := range l.reset {
		t.regs[idx] = v
	}
	entry := cfg.Entry
	if entry == 0 {
		entry = cfg.BaseAddress
	}
	t.regs[l.pc] = entry
	t.regs[l.sp] = cfg.BaseAddress + uint64(cfg.MemorySize)

	if len(cfg.Program) > 0 {
		off, ok := t.Translate(entry)
		if !ok || off+uint64(len(cfg.Program)) > uint64(len(t.mem)) {
			return nil, fmt.Errorf("sim: program of %d bytes does not fit at %#x", len(cfg.Program), entry)
		}
		copy(t.mem[off:], cfg.Program)
	}

	return t, nil
}

// Arch implements target.Target.
func (t *Target) Arch() string { return t.layout.name }

// BigEndian implements target.Target.
func (t *Target) BigEndian() bool { return t.bigEndian }

// State implements target.Target.
func (t *Target) State() []target.StateEntry {
	return slices.Clone(t.layout.state)
}

// ReadState implements target.Target. Unknown indices read as zero.
func (t *Target) ReadState(index int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.regs) {
		return 0
	}
	return t.regs[index]
}

// WriteState implements target.Target. Values are truncated to the entry's width.
func (t *Target) WriteState(index int, value uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.regs) {
		return
	}
	t.regs[index] = t.truncate(index, value)
}

func (t *Target) truncate(index int, value uint64) uint64 {
	size := t.layout.state[index].Size
	if size >= 8 {
		return value
	}
	return value & (1<<(8*uint(size)) - 1)
}

// Translate implements target.Target. Addresses outside the memory window fail.
func (t *Target) Translate(addr uint64) (uint64, bool) {
	if addr < t.base || addr-t.base >= uint64(len(t.mem)) {
		return 0, false
	}
	return addr - t.base, true
}

// ReadMemory implements target.Target.
func (t *Target) ReadMemory(offset uint64, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inRange(offset, n) {
		return nil, fmt.Errorf("%w: %#x+%d", target.ErrOutOfRange, offset, n)
	}
	return slices.Clone(t.mem[offset : offset+uint64(n)]), nil
}

// WriteMemory implements target.Target.
func (t *Target) WriteMemory(offset uint64, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inRange(offset, len(data)) {
		return fmt.Errorf("%w: %#x+%d", target.ErrOutOfRange, offset, len(data))
	}
	copy(t.mem[offset:], data)
	return nil
}

func (t *Target) inRange(offset uint64, n int) bool {
	return n >= 0 && offset <= uint64(len(t.mem)) && uint64(n) <= uint64(len(t.mem))-offset
}

// SetBreakpoint implements target.Target.
func (t *Target) SetBreakpoint(addr uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.breakpoints = append(t.breakpoints, breakpoint{id: id, addr: addr})
	return id
}

// ClearBreakpoint implements target.Target.
func (t *Target) ClearBreakpoint(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.breakpoints)
	t.breakpoints = slices.DeleteFunc(t.breakpoints, func(bp breakpoint) bool { return bp.id == id })
	return len(t.breakpoints) != n
}

// SetWatchpoint implements target.Target.
func (t *Target) SetWatchpoint(kind target.WatchKind, offset uint64, length int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if length <= 0 {
		length = 1
	}
	id := t.nextID
	t.nextID++
	t.watchpoints = append(t.watchpoints, watchpoint{id: id, kind: kind, offset: offset, length: length})
	return id
}

// ClearWatchpoint implements target.Target.
func (t *Target) ClearWatchpoint(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.watchpoints)
	t.watchpoints = slices.DeleteFunc(t.watchpoints, func(wp watchpoint) bool { return wp.id == id })
	return len(t.watchpoints) != n
}

// Triggered implements target.Target.
func (t *Target) Triggered() target.Trigger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trigger
}

// Halted implements target.Target.
func (t *Target) Halted() <-chan struct{} {
	return t.halted
}

// Running implements target.Target.
func (t *Target) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Exited implements target.Exiter.
func (t *Target) Exited() <-chan struct{} {
	return t.exited
}

// ScheduleExit implements target.Target. The target shuts down on the next Resume.
func (t *Target) ScheduleExit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exitScheduled = true
}

func (t *Target) isExited() bool {
	select {
	case <-t.exited:
		return true
	default:
		return false
	}
}

// drainHalted drops an undelivered notification. Callers hold mu.
func (t *Target) drainHalted() {
	select {
	case <-t.halted:
	default:
	}
}

// notifyHalted announces a transition to halted. Callers hold mu.
func (t *Target) notifyHalted() {
	select {
	case t.halted <- struct{}{}:
	default:
	}
}

// Resume implements target.Target.
func (t *Target) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.isExited() {
		return
	}
	if t.exitScheduled {
		t.exitOnce.Do(func() { close(t.exited) })
		t.logger.Info("target exited")
		return
	}

	t.drainHalted()
	t.trigger = target.Trigger{}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done)
}

// Step implements target.Target. The instruction runs before Step returns;
// the halt is still announced on the Halted channel.
func (t *Target) Step() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.isExited() {
		return
	}
	t.drainHalted()
	t.trigger = target.Trigger{}
	t.execute(true)
	t.notifyHalted()
}

// Halt implements target.Target. It returns once the CPU has stopped.
func (t *Target) Halt() {
	t.mu.Lock()
	if !t.running || t.stop == nil {
		t.mu.Unlock()
		return
	}
	stop, done := t.stop, t.done
	t.stop = nil
	t.mu.Unlock()

	close(stop)
	<-done

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.running = false
		t.trigger = target.Trigger{}
		t.notifyHalted()
	}
}

func (t *Target) run(stop, done chan struct{}) {
	defer close(done)

	first := true
	budget := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if t.limiter != nil && budget == 0 {
			if !t.waitClock(stop) {
				return
			}
			budget = clockBatch
		}
		budget--

		t.mu.Lock()
		halt := t.execute(first)
		if halt {
			t.running = false
			t.stop = nil
			t.notifyHalted()
		}
		t.mu.Unlock()
		if halt {
			return
		}
		first = false
	}
}

// waitClock blocks until the next batch of instructions may run. It returns
// false if stop closed first.
func (t *Target) waitClock(stop <-chan struct{}) bool {
	r := t.limiter.ReserveN(time.Now(), clockBatch)
	if !r.OK() {
		return true
	}
	delay := r.Delay()
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-stop:
		r.Cancel()
		return false
	case <-timer.C:
		return true
	}
}
