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

/*
Package gdbserver serves the GDB remote serial protocol for one target.

A Session owns one debugger connection. It decodes framed packets,
dispatches each command through a fixed handler table and replies with the
handler's outcome:

	OUTCOME       REPLY
	none          the handler already replied
	ok            OK
	error         E01
	unsupported   empty packet

While the target runs, the session keeps reading so an interrupt (0x03)
can halt it. Packets that arrive during a run are queued and handled in
order once the target stops.

A Server accepts connections from a transport.Listener and runs one
session at a time; later debuggers wait until the current one leaves.
*/
package gdbserver
