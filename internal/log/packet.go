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

package log

import (
	"log/slog"
	"strconv"
)

// Direction of a packet relative to the stub.
type Direction string

const (
	// Inbound packets come from the debugger.
	Inbound Direction = "recv"
	// Outbound packets are replies sent by the stub.
	Outbound Direction = "send"
)

// maxLoggedPayload bounds the payload echoed into trace logs.
const maxLoggedPayload = 256

// Packet logs one framed packet at trace level. Long payloads are truncated.
func Packet(logger *slog.Logger, dir Direction, payload []byte) {
	shown := payload
	truncated := false
	if len(shown) > maxLoggedPayload {
		shown = shown[:maxLoggedPayload]
		truncated = true
	}
	Trace(logger, "packet",
		slog.String("dir", string(dir)),
		slog.String("payload", strconv.Quote(string(shown))),
		slog.Int("len", len(payload)),
		slog.Bool("truncated", truncated),
	)
}

// Command logs a dispatched command and its outcome at debug level.
func Command(logger *slog.Logger, cmd byte, outcome string, durationMs int64) {
	logger.Debug("command handled",
		CommandKey, string(cmd),
		"outcome", outcome,
		DurationKey, durationMs,
	)
}
