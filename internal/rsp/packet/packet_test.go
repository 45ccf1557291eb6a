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

package packet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(d *Decoder, data string) []Event {
	var events []Event
	for i := 0; i < len(data); i++ {
		if ev := d.Feed(data[i]); ev != EventNone {
			events = append(events, ev)
		}
	}
	return events
}

func TestEncode(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"", "$#00"},
		{"OK", "$OK#9a"},
		{"?", "$?#3f"},
		{"E01", "$E01#a6"},
		{"qSupported", "$qSupported#37"},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, string(EncodeString(tt.payload)))
		})
	}
}

func TestDecoder_ValidPacket(t *testing.T) {
	d := NewDecoder(0)

	events := feed(d, "$?#3f")

	require.Equal(t, []Event{EventPacket}, events)
	assert.Equal(t, "?", string(d.Packet()))
	assert.True(t, d.Idle())
}

func TestDecoder_UppercaseChecksum(t *testing.T) {
	d := NewDecoder(0)
	events := feed(d, "$OK#9A")
	require.Equal(t, []Event{EventPacket}, events)
	assert.Equal(t, "OK", string(d.Packet()))
}

func TestDecoder_BadChecksum(t *testing.T) {
	d := NewDecoder(0)
	events := feed(d, "$?#00")
	assert.Equal(t, []Event{EventBadChecksum}, events)
	assert.True(t, d.Idle())
}

func TestDecoder_InvalidChecksumDigit(t *testing.T) {
	tests := []string{"$?#g0", "$?#3z"}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			d := NewDecoder(0)
			assert.Equal(t, []Event{EventBadDigit}, feed(d, in))
			assert.True(t, d.Idle())

			// The decoder recovers for the next packet.
			assert.Equal(t, []Event{EventPacket}, feed(d, "$?#3f"))
		})
	}
}

func TestDecoder_Interrupt(t *testing.T) {
	d := NewDecoder(0)
	assert.Equal(t, []Event{EventInterrupt}, feed(d, "\x03"))

	// Inside a packet 0x03 is ordinary payload.
	payload := []byte{'a', 0x03}
	frame := Encode(payload)
	events := feed(d, string(frame))
	require.Equal(t, []Event{EventPacket}, events)
	assert.Equal(t, payload, d.Packet())
}

func TestDecoder_IgnoresNoise(t *testing.T) {
	d := NewDecoder(0)
	events := feed(d, "++-xyz$g#67")
	require.Equal(t, []Event{EventPacket}, events)
	assert.Equal(t, "g", string(d.Packet()))
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder(4)

	assert.Equal(t, []Event{EventPacket}, feed(d, string(EncodeString("abcd"))))

	events := feed(d, "$abcde")
	assert.Equal(t, []Event{EventOverflow}, events)
	assert.True(t, d.Idle())

	// Remaining bytes of the dropped packet are treated as idle noise.
	assert.Empty(t, feed(d, "#ff"))
	assert.Equal(t, []Event{EventPacket}, feed(d, "$?#3f"))
}

func TestDecoder_RestartOnDollar(t *testing.T) {
	d := NewDecoder(0)
	// A '$' inside a packet is payload, so the checksum covers it.
	frame := EncodeString("a$b")
	assert.Equal(t, []Event{EventPacket}, feed(d, string(frame)))
	assert.Equal(t, "a$b", string(d.Packet()))
}

func TestChecksumRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("T05"),
		[]byte("m1000,4"),
		bytes.Repeat([]byte{0xff}, 300),
		[]byte("qXfer:features:read:target.xml:0,3fff"),
	}

	for _, p := range payloads {
		d := NewDecoder(0)
		frame := Encode(p)
		var got Event
		for _, b := range frame {
			if ev := d.Feed(b); ev != EventNone {
				got = ev
			}
		}
		require.Equal(t, EventPacket, got, "payload %q", p)
		assert.Equal(t, Checksum(p), Checksum(d.Packet()))
		assert.Equal(t, len(p), len(d.Packet()))
	}
}

func TestSplit(t *testing.T) {
	data := []byte("+$OK#9a$T05#b9$E0")

	frames, n, err := Split(data)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, Ack, frames[0].Control)
	assert.Equal(t, "OK", string(frames[1].Payload))
	assert.Equal(t, "T05", string(frames[2].Payload))
	assert.Equal(t, "$E0", string(data[n:]))
}

func TestSplit_BadChecksum(t *testing.T) {
	_, n, err := Split([]byte("$OK#00+"))
	require.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, 6, n)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "bad_checksum", EventBadChecksum.String())
	assert.True(t, EventOverflow.IsFramingError())
	assert.False(t, EventInterrupt.IsFramingError())
}
