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
	"encoding/binary"

	"github.com/tombee/gdbstub/internal/target"
)

// Opcodes.
const (
	opNop   = 0x90
	opInc   = 0x40
	opLoad  = 0xA1
	opStore = 0xA3
	opJmp   = 0xEB
	opHlt   = 0xF4
)

// execute runs one instruction and reports whether the CPU must halt.
// Unless skipBreak is set, a breakpoint at the program counter halts before
// the instruction runs. Callers hold mu.
func (t *Target) execute(skipBreak bool) bool {
	pc := t.regs[t.layout.pc]

	if !skipBreak {
		if id, ok := t.breakpointAt(pc); ok {
			t.trigger = target.Trigger{Kind: target.TriggerBreakpoint, ID: id}
			return true
		}
	}

	op, ok := t.fetch(pc, 1)
	if !ok {
		t.logger.Debug("instruction fetch outside memory", "pc", pc)
		return true
	}

	var hit *watchpoint
	next := pc + 1
	halt := false

	switch op[0] {
	case opNop:
	case opInc:
		t.regs[t.layout.acc] = t.truncate(t.layout.acc, t.regs[t.layout.acc]+1)
	case opLoad, opStore:
		imm, ok := t.fetch(pc+1, 4)
		if !ok {
			return true
		}
		addr := uint64(t.order().Uint32(imm))
		off, ok := t.Translate(addr)
		if !ok || !t.inRange(off, 4) {
			t.logger.Debug("data access outside memory", "pc", pc, "addr", addr)
			return true
		}
		if op[0] == opLoad {
			t.regs[t.layout.acc] = t.truncate(t.layout.acc, uint64(t.order().Uint32(t.mem[off:off+4])))
			hit = t.watchHit(off, 4, false)
		} else {
			t.order().PutUint32(t.mem[off:off+4], uint32(t.regs[t.layout.acc]))
			hit = t.watchHit(off, 4, true)
		}
		next = pc + 5
	case opJmp:
		rel, ok := t.fetch(pc+1, 1)
		if !ok {
			return true
		}
		next = pc + 2 + uint64(int64(int8(rel[0])))
	case opHlt:
		halt = true
	default:
		t.logger.Debug("illegal instruction", "pc", pc, "opcode", op[0])
		return true
	}

	t.regs[t.layout.pc] = t.truncate(t.layout.pc, next)

	if hit != nil {
		t.trigger = target.Trigger{
			Kind:   target.TriggerWatchpoint,
			ID:     hit.id,
			Watch:  hit.kind,
			Offset: hit.offset,
		}
		return true
	}
	return halt
}

func (t *Target) order() binary.ByteOrder {
	if t.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (t *Target) fetch(addr uint64, n int) ([]byte, bool) {
	off, ok := t.Translate(addr)
	if !ok || !t.inRange(off, n) {
		return nil, false
	}
	return t.mem[off : off+uint64(n)], true
}

// breakpointAt returns the first breakpoint at addr whose condition holds.
func (t *Target) breakpointAt(addr uint64) (int, bool) {
	for _, bp := range t.breakpoints {
		if bp.addr != addr {
			continue
		}
		hit, err := t.conds.eval(addr, t.registerEnv())
		if err != nil {
			t.logger.Warn("breakpoint condition failed", "addr", addr, "error", err)
		}
		if hit {
			return bp.id, true
		}
	}
	return 0, false
}

func (t *Target) registerEnv() map[string]interface{} {
	env := make(map[string]interface{}, len(t.regs))
	for _, e := range t.layout.state {
		env[e.Symbol] = int(t.regs[e.Index])
	}
	return env
}

// watchHit returns the first watchpoint overlapping [off, off+n) that fires
// for the access direction.
func (t *Target) watchHit(off uint64, n int, write bool) *watchpoint {
	for i := range t.watchpoints {
		wp := &t.watchpoints[i]
		if !wp.kind.Matches(write) {
			continue
		}
		if off < wp.offset+uint64(wp.length) && wp.offset < off+uint64(n) {
			return wp
		}
	}
	return nil
}
