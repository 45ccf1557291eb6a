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

package gdbserver

import (
	"encoding/hex"
	"strconv"
	"strings"
)

func (s *Session) handleExtendedMode(string) Outcome {
	s.extended = true
	return OutcomeOK
}

func (s *Session) handleStopReason(string) Outcome {
	s.sendStopReport()
	return OutcomeNone
}

func (s *Session) handleContinue(args string) Outcome {
	// Resuming at an address is not supported.
	if args != "" {
		return OutcomeUnsupported
	}
	s.resume(false)
	return OutcomeNone
}

func (s *Session) handleStep(args string) Outcome {
	if args != "" {
		return OutcomeUnsupported
	}
	s.resume(true)
	return OutcomeNone
}

func (s *Session) handleDetach(args string) Outcome {
	// Multiprocess detach (D;pid) is not supported.
	if args != "" {
		return OutcomeUnsupported
	}
	s.releasePoints()
	s.target.Resume()
	s.detached = true
	return OutcomeOK
}

func (s *Session) handleKill(string) Outcome {
	s.target.ScheduleExit()
	s.target.Resume()
	s.detached = true
	s.killed = true
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("closing connection after kill", "error", err)
	}
	return OutcomeNone
}

// handleSetThread accepts any thread selection for c and g operations. The
// target has a single thread, so the choice has no effect.
func (s *Session) handleSetThread(args string) Outcome {
	if args == "" {
		return OutcomeUnsupported
	}
	switch args[0] {
	case 'c', 'g':
	default:
		return OutcomeUnsupported
	}
	switch args[1:] {
	case "0", "1", "-1":
		return OutcomeOK
	}
	return OutcomeUnsupported
}

func (s *Session) handleReadRegisters(args string) Outcome {
	if !s.descriptionSent {
		return OutcomeError
	}
	if args != "" {
		return OutcomeUnsupported
	}
	var b strings.Builder
	for _, d := range s.catalog.Mapped() {
		b.WriteString(s.catalog.Format(d, s.target.ReadState(d.StateIndex)))
	}
	s.send(b.String())
	return OutcomeNone
}

// handleWriteRegisters parses every register before writing any of them.
func (s *Session) handleWriteRegisters(args string) Outcome {
	if !s.descriptionSent {
		return OutcomeError
	}

	regs := s.catalog.Mapped()
	values := make([]uint64, len(regs))
	rest := args
	for i, d := range regs {
		w := d.HexWidth()
		if len(rest) < w {
			return OutcomeError
		}
		v, err := s.catalog.Parse(d, rest[:w])
		if err != nil {
			return OutcomeError
		}
		values[i] = v
		rest = rest[w:]
	}
	if rest != "" {
		return OutcomeError
	}

	for i, d := range regs {
		s.target.WriteState(d.StateIndex, values[i])
	}
	return OutcomeOK
}

func (s *Session) handleReadRegister(args string) Outcome {
	n, err := parseRegisterNumber(args)
	if err != nil || n >= s.catalog.Len() || !s.descriptionSent {
		return OutcomeError
	}
	d, ok := s.catalog.Lookup(n)
	if !ok {
		return OutcomeError
	}
	s.send(s.catalog.Format(d, s.target.ReadState(d.StateIndex)))
	return OutcomeNone
}

func (s *Session) handleWriteRegister(args string) Outcome {
	num, value, ok := strings.Cut(args, "=")
	if !ok {
		return OutcomeError
	}
	n, err := parseRegisterNumber(num)
	if err != nil || n >= s.catalog.Len() || !s.descriptionSent {
		return OutcomeError
	}
	d, ok := s.catalog.Lookup(n)
	if !ok {
		return OutcomeError
	}
	v, err := s.catalog.Parse(d, value)
	if err != nil {
		return OutcomeError
	}
	s.target.WriteState(d.StateIndex, v)
	return OutcomeOK
}

func (s *Session) handleReadMemory(args string) Outcome {
	addr, length, err := parseAddrLength(args)
	if err != nil {
		return OutcomeError
	}
	// The hex reply must fit in one packet.
	if length > s.cfg.MaxPacketSize/2 {
		return OutcomeError
	}
	offset, ok := s.target.Translate(addr)
	if !ok {
		return OutcomeError
	}
	data, err := s.target.ReadMemory(offset, length)
	if err != nil {
		s.logger.Debug("memory read failed", "addr", addr, "length", length, "error", err)
		return OutcomeError
	}
	s.send(hex.EncodeToString(data))
	return OutcomeNone
}

// handleWriteMemory decodes the whole payload before touching memory.
func (s *Session) handleWriteMemory(args string) Outcome {
	spec, payload, ok := strings.Cut(args, ":")
	if !ok {
		return OutcomeError
	}
	addr, length, err := parseAddrLength(spec)
	if err != nil {
		return OutcomeError
	}
	offset, ok := s.target.Translate(addr)
	if !ok {
		return OutcomeError
	}
	data, err := hex.DecodeString(payload)
	if err != nil || len(data) != length {
		return OutcomeError
	}
	if err := s.target.WriteMemory(offset, data); err != nil {
		s.logger.Debug("memory write failed", "addr", addr, "length", length, "error", err)
		return OutcomeError
	}
	return OutcomeOK
}

func parseHex(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

func parseRegisterNumber(s string) (int, error) {
	n, err := strconv.ParseUint(s, 16, 31)
	return int(n), err
}

// parseAddrLength parses "ADDR,LENGTH" with both fields in hex.
func parseAddrLength(s string) (uint64, int, error) {
	a, l, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, strconv.ErrSyntax
	}
	addr, err := parseHex(a)
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.ParseUint(l, 16, 31)
	if err != nil {
		return 0, 0, err
	}
	return addr, int(n), nil
}
