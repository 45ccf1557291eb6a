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
	"strconv"
	"strings"

	"github.com/tombee/gdbstub/internal/ledger"
	"github.com/tombee/gdbstub/internal/target"
)

// Z/z type codes.
const (
	pointSoftware = 0
	pointHardware = 1
	pointWrite    = 2
	pointRead     = 3
	pointAccess   = 4
)

type pointRequest struct {
	typ  int
	addr uint64
	kind uint64
}

// watchKind maps a watchpoint type code to its access kind.
func (r pointRequest) watchKind() (target.WatchKind, bool) {
	switch r.typ {
	case pointWrite:
		return target.WatchWrite, true
	case pointRead:
		return target.WatchRead, true
	case pointAccess:
		return target.WatchAccess, true
	}
	return 0, false
}

// parsePoint parses "TYPE,ADDR,KIND". TYPE is decimal, the rest hex.
func parsePoint(args string) (pointRequest, error) {
	fields := strings.Split(args, ",")
	if len(fields) != 3 {
		return pointRequest{}, strconv.ErrSyntax
	}
	typ, err := strconv.Atoi(fields[0])
	if err != nil {
		return pointRequest{}, err
	}
	addr, err := parseHex(fields[1])
	if err != nil {
		return pointRequest{}, err
	}
	kind, err := parseHex(fields[2])
	if err != nil {
		return pointRequest{}, err
	}
	return pointRequest{typ: typ, addr: addr, kind: kind}, nil
}

func (s *Session) handleInsertPoint(args string) Outcome {
	req, err := parsePoint(args)
	if err != nil {
		return OutcomeError
	}

	switch req.typ {
	case pointSoftware, pointHardware:
		id := s.target.SetBreakpoint(req.addr)
		s.ledger.AddBreakpoint(ledger.Breakpoint{Address: req.addr, Kind: int(req.kind), ID: id})
		s.logger.Debug("breakpoint inserted", "addr", req.addr, "id", id)
		return OutcomeOK
	}

	kind, ok := req.watchKind()
	if !ok {
		return OutcomeUnsupported
	}
	offset, ok := s.target.Translate(req.addr)
	if !ok {
		return OutcomeError
	}
	s.ledger.MapAddress(offset, req.addr)
	length := int(req.kind)
	id := s.target.SetWatchpoint(kind, offset, length)
	s.ledger.AddWatchpoint(ledger.Watchpoint{Kind: kind, Offset: offset, Length: length, ID: id})
	s.logger.Debug("watchpoint inserted", "kind", kind.String(), "addr", req.addr, "length", length, "id", id)
	return OutcomeOK
}

func (s *Session) handleRemovePoint(args string) Outcome {
	req, err := parsePoint(args)
	if err != nil {
		return OutcomeError
	}

	switch req.typ {
	case pointSoftware, pointHardware:
		bp, ok := s.ledger.FindBreakpoint(req.addr)
		if !ok {
			return OutcomeError
		}
		if !s.target.ClearBreakpoint(bp.ID) {
			return OutcomeError
		}
		s.ledger.RemoveBreakpoint(bp.ID)
		return OutcomeOK
	}

	kind, ok := req.watchKind()
	if !ok {
		return OutcomeUnsupported
	}
	offset, ok := s.target.Translate(req.addr)
	if !ok {
		return OutcomeError
	}
	s.ledger.UnmapAddress(offset)
	wp, ok := s.ledger.FindWatchpoint(kind, offset, int(req.kind))
	if !ok {
		return OutcomeError
	}
	if !s.target.ClearWatchpoint(wp.ID) {
		return OutcomeError
	}
	s.ledger.RemoveWatchpoint(wp.ID)
	return OutcomeOK
}

// releasePoints clears every breakpoint and watchpoint this session inserted
// so that none outlive the ledger that records them.
func (s *Session) releasePoints() {
	for _, bp := range s.ledger.Breakpoints() {
		if !s.target.ClearBreakpoint(bp.ID) {
			s.logger.Debug("breakpoint already cleared", "addr", bp.Address, "id", bp.ID)
		}
		s.ledger.RemoveBreakpoint(bp.ID)
	}
	for _, wp := range s.ledger.Watchpoints() {
		if !s.target.ClearWatchpoint(wp.ID) {
			s.logger.Debug("watchpoint already cleared", "offset", wp.Offset, "id", wp.ID)
		}
		s.ledger.RemoveWatchpoint(wp.ID)
		s.ledger.UnmapAddress(wp.Offset)
	}
}
