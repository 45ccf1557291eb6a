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
)

const featuresAnnex = "features:read:target.xml:"

func (s *Session) handleQuery(args string) Outcome {
	switch {
	case strings.HasPrefix(args, "C"):
		s.send("QC1")
		return OutcomeNone
	case strings.HasPrefix(args, "P"), strings.HasPrefix(args, "L"):
		return OutcomeUnsupported
	}

	name, rest, _ := strings.Cut(args, ":")
	switch name {
	case "Supported":
		s.send("PacketSize=" + strconv.FormatInt(int64(s.cfg.MaxPacketSize), 16) + ";qXfer:features:read+")
		return OutcomeNone
	case "Xfer":
		return s.handleXferFeatures(rest)
	case "fThreadInfo":
		s.send("m1")
		return OutcomeNone
	case "sThreadInfo":
		s.send("l")
		return OutcomeNone
	}
	return OutcomeUnsupported
}

// handleXferFeatures serves target.xml. The document is always returned in
// one piece, whatever window the debugger asks for.
func (s *Session) handleXferFeatures(args string) Outcome {
	window, ok := strings.CutPrefix(args, featuresAnnex)
	if !ok {
		return OutcomeUnsupported
	}
	if _, _, err := parseAddrLength(window); err != nil {
		return OutcomeUnsupported
	}
	s.send("l" + s.catalog.Description())
	s.descriptionSent = true
	return OutcomeNone
}
