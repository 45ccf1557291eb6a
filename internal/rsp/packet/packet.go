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

// Package packet implements the framing layer of the remote serial protocol:
// a byte-at-a-time decoder for "$payload#xx" frames and the matching encoder.
package packet

import (
	"bytes"
	"fmt"
)

// Protocol control bytes.
const (
	// Ack acknowledges a well-formed packet.
	Ack byte = '+'
	// Nack requests retransmission after a checksum mismatch.
	Nack byte = '-'
	// Interrupt asks a running target to stop. Only meaningful outside a packet.
	Interrupt byte = 0x03

	startByte    byte = '$'
	checksumByte byte = '#'
)

// MaxPacketSize is the largest payload the decoder accepts.
// It is advertised to clients through qSupported.
const MaxPacketSize = 16384

// Event is the result of feeding one byte to a Decoder.
type Event int

const (
	// EventNone means the byte was consumed with nothing to report.
	EventNone Event = iota
	// EventInterrupt is a bare 0x03 seen outside a packet.
	EventInterrupt
	// EventPacket means a packet with a valid checksum is ready; the caller acks it.
	EventPacket
	// EventBadChecksum means a complete packet failed verification; the caller nacks it.
	EventBadChecksum
	// EventOverflow means the payload outgrew the limit and was dropped silently.
	EventOverflow
	// EventBadDigit means a checksum digit was not hex and the packet was dropped silently.
	EventBadDigit
)

// String returns the event name used in logs and metric labels.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventInterrupt:
		return "interrupt"
	case EventPacket:
		return "packet"
	case EventBadChecksum:
		return "bad_checksum"
	case EventOverflow:
		return "overflow"
	case EventBadDigit:
		return "bad_digit"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// IsFramingError reports whether the event is one of the decoder's error outcomes.
func (e Event) IsFramingError() bool {
	return e == EventBadChecksum || e == EventOverflow || e == EventBadDigit
}

type state int

const (
	stateIdle state = iota
	stateInPacket
	stateChecksumHi
	stateChecksumLo
)

// Decoder recognizes packet boundaries in an inbound byte stream.
// It never fails: malformed input resets it to idle. A Decoder is not
// safe for concurrent use.
type Decoder struct {
	state    state
	buf      []byte
	sum      byte
	received byte
	max      int
	ready    []byte
}

// NewDecoder returns a Decoder accepting payloads up to maxSize bytes.
// A non-positive maxSize selects MaxPacketSize.
func NewDecoder(maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = MaxPacketSize
	}
	return &Decoder{
		buf: make([]byte, 0, 256),
		max: maxSize,
	}
}

// Feed advances the state machine by one byte.
func (d *Decoder) Feed(b byte) Event {
	switch d.state {
	case stateIdle:
		switch b {
		case startByte:
			d.buf = d.buf[:0]
			d.sum = 0
			d.state = stateInPacket
		case Interrupt:
			return EventInterrupt
		}
		// Acks from the client and line noise are ignored.
		return EventNone

	case stateInPacket:
		if b == checksumByte {
			d.state = stateChecksumHi
			return EventNone
		}
		if len(d.buf) >= d.max {
			d.state = stateIdle
			return EventOverflow
		}
		d.buf = append(d.buf, b)
		d.sum += b
		return EventNone

	case stateChecksumHi:
		n, ok := fromHex(b)
		if !ok {
			d.state = stateIdle
			return EventBadDigit
		}
		d.received = n << 4
		d.state = stateChecksumLo
		return EventNone

	case stateChecksumLo:
		d.state = stateIdle
		n, ok := fromHex(b)
		if !ok {
			return EventBadDigit
		}
		d.received |= n
		if d.received != d.sum {
			return EventBadChecksum
		}
		d.ready = append(d.ready[:0], d.buf...)
		return EventPacket
	}
	return EventNone
}

// Packet returns the payload of the last EventPacket. The slice is reused by
// the next completed packet; callers that keep it must copy.
func (d *Decoder) Packet() []byte {
	return d.ready
}

// Idle reports whether the decoder is between packets.
func (d *Decoder) Idle() bool {
	return d.state == stateIdle
}

// Checksum is the modulo-256 sum of the payload bytes.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Encode frames payload as "$payload#xx" with a lowercase hex checksum.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, startByte)
	out = append(out, payload...)
	out = append(out, checksumByte)
	sum := Checksum(payload)
	return append(out, hexDigits[sum>>4], hexDigits[sum&0x0f])
}

// EncodeString is Encode for a string payload.
func EncodeString(payload string) []byte {
	return Encode([]byte(payload))
}

// Frame is a decoded unit read back by a client: either a control byte or a packet.
type Frame struct {
	Control byte
	Payload []byte
}

// Split parses a buffer of wire bytes sent by a stub into frames. It returns the
// frames found and the number of bytes consumed; a trailing partial packet is
// left unconsumed. Packets with a bad checksum yield ErrChecksum.
func Split(data []byte) ([]Frame, int, error) {
	var frames []Frame
	i := 0
	for i < len(data) {
		switch data[i] {
		case Ack, Nack:
			frames = append(frames, Frame{Control: data[i]})
			i++
		case startByte:
			end := bytes.IndexByte(data[i:], checksumByte)
			if end < 0 || i+end+2 >= len(data) {
				return frames, i, nil
			}
			payload := data[i+1 : i+end]
			hi, ok1 := fromHex(data[i+end+1])
			lo, ok2 := fromHex(data[i+end+2])
			if !ok1 || !ok2 || hi<<4|lo != Checksum(payload) {
				return frames, i + end + 3, fmt.Errorf("%w: %q", ErrChecksum, payload)
			}
			frames = append(frames, Frame{Payload: append([]byte(nil), payload...)})
			i += end + 3
		default:
			i++
		}
	}
	return frames, i, nil
}

const hexDigits = "0123456789abcdef"

func fromHex(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
