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
	"fmt"
	"strings"

	"github.com/tombee/gdbstub/internal/target"
)

// stopReport builds the T05 reply for the most recent halt.
func (s *Session) stopReport() string {
	var b strings.Builder
	b.WriteString("T05")

	if trig := s.target.Triggered(); trig.Kind == target.TriggerWatchpoint {
		addr, ok := s.ledger.ClientAddress(trig.Offset)
		if !ok {
			addr = trig.Offset
		}
		fmt.Fprintf(&b, "%s:%x;", trig.Watch, addr)
	}

	// Register numbers are meaningless to a debugger without the description.
	if s.descriptionSent {
		for _, d := range s.catalog.StopReport() {
			fmt.Fprintf(&b, "%02x:%s;", d.Number, s.catalog.Format(d, s.target.ReadState(d.StateIndex)))
		}
	}
	return b.String()
}

func (s *Session) sendStopReport() {
	s.send(s.stopReport())
}
