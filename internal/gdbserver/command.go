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

// Command is the first byte of a packet.
type Command byte

const (
	CmdExtendedMode   Command = '!'
	CmdStopReason     Command = '?'
	CmdContinue       Command = 'c'
	CmdDetach         Command = 'D'
	CmdReadRegisters  Command = 'g'
	CmdWriteRegisters Command = 'G'
	CmdSetThread      Command = 'H'
	CmdKill           Command = 'k'
	CmdReadMemory     Command = 'm'
	CmdWriteMemory    Command = 'M'
	CmdReadRegister   Command = 'p'
	CmdWriteRegister  Command = 'P'
	CmdQuery          Command = 'q'
	CmdStep           Command = 's'
	CmdRemovePoint    Command = 'z'
	CmdInsertPoint    Command = 'Z'
)

var commandNames = map[Command]string{
	CmdExtendedMode:   "extended_mode",
	CmdStopReason:     "stop_reason",
	CmdContinue:       "continue",
	CmdDetach:         "detach",
	CmdReadRegisters:  "read_registers",
	CmdWriteRegisters: "write_registers",
	CmdSetThread:      "set_thread",
	CmdKill:           "kill",
	CmdReadMemory:     "read_memory",
	CmdWriteMemory:    "write_memory",
	CmdReadRegister:   "read_register",
	CmdWriteRegister:  "write_register",
	CmdQuery:          "query",
	CmdStep:           "step",
	CmdRemovePoint:    "remove_point",
	CmdInsertPoint:    "insert_point",
}

// String returns a stable name used in metrics and traces.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Outcome is what a handler asks the dispatcher to reply.
type Outcome int

const (
	// OutcomeNone means the handler sent its own reply, or none is due.
	OutcomeNone Outcome = iota
	// OutcomeOK replies "OK".
	OutcomeOK
	// OutcomeError replies "E01".
	OutcomeError
	// OutcomeUnsupported replies with an empty packet.
	OutcomeUnsupported
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// reply is the packet payload sent for outcomes other than OutcomeNone.
func (o Outcome) reply() (string, bool) {
	switch o {
	case OutcomeOK:
		return "OK", true
	case OutcomeError:
		return "E01", true
	case OutcomeUnsupported:
		return "", true
	}
	return "", false
}

// handlerFunc handles one command. args is the packet without its command byte.
type handlerFunc func(s *Session, args string) Outcome

// handlers is the dispatch table. Commands not listed are unsupported.
var handlers = map[Command]handlerFunc{
	CmdExtendedMode:   (*Session).handleExtendedMode,
	CmdStopReason:     (*Session).handleStopReason,
	CmdContinue:       (*Session).handleContinue,
	CmdDetach:         (*Session).handleDetach,
	CmdReadRegisters:  (*Session).handleReadRegisters,
	CmdWriteRegisters: (*Session).handleWriteRegisters,
	CmdSetThread:      (*Session).handleSetThread,
	CmdKill:           (*Session).handleKill,
	CmdReadMemory:     (*Session).handleReadMemory,
	CmdWriteMemory:    (*Session).handleWriteMemory,
	CmdReadRegister:   (*Session).handleReadRegister,
	CmdWriteRegister:  (*Session).handleWriteRegister,
	CmdQuery:          (*Session).handleQuery,
	CmdStep:           (*Session).handleStep,
	CmdRemovePoint:    (*Session).handleRemovePoint,
	CmdInsertPoint:    (*Session).handleInsertPoint,
}
