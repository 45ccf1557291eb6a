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

// Package client is a minimal remote serial protocol client. The probe
// command uses it to talk to a running stub.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/rsp/packet"
	"github.com/tombee/gdbstub/internal/transport"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

const (
	// DefaultTimeout bounds how long Exchange waits for a reply.
	DefaultTimeout = 5 * time.Second

	// maxRetries is how often a nacked packet is resent.
	maxRetries = 3

	readPoll = 50 * time.Millisecond
)

// Client sends packets and reads replies over one connection. It is not
// safe for concurrent use.
type Client struct {
	conn    transport.Conn
	timeout time.Duration
	logger  *slog.Logger

	pending []byte
	frames  []packet.Frame
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets how long Exchange waits for a reply.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger logs every packet at trace level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New wraps an established connection.
func New(conn transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		timeout: DefaultTimeout,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a stub.
func Dial(ctx context.Context, kind transport.Kind, addr string, opts ...Option) (*Client, error) {
	conn, err := transport.Dial(ctx, kind, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", kind, addr, err)
	}
	return New(conn, opts...), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send frames payload and waits for the stub's acknowledgement, resending
// on a nack.
func (c *Client) Send(ctx context.Context, payload string) error {
	frame := packet.EncodeString(payload)
	for attempt := 0; ; attempt++ {
		log.Packet(c.logger, log.Outbound, []byte(payload))
		if _, err := c.conn.Write(frame); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}

		f, err := c.next(ctx)
		if err != nil {
			return err
		}
		switch f.Control {
		case packet.Ack:
			return nil
		case packet.Nack:
			if attempt >= maxRetries {
				return &stuberrors.ProtocolError{Op: "send", Packet: payload, Cause: fmt.Errorf("nacked %d times", attempt+1)}
			}
			continue
		default:
			return &stuberrors.ProtocolError{Op: "send", Packet: payload, Cause: fmt.Errorf("expected ack, got packet %q", f.Payload)}
		}
	}
}

// Reply waits for the next packet from the stub and acknowledges it.
func (c *Client) Reply(ctx context.Context) (string, error) {
	for {
		f, err := c.next(ctx)
		if err != nil {
			return "", err
		}
		if f.Control != 0 {
			continue
		}
		if _, err := c.conn.Write([]byte{packet.Ack}); err != nil {
			return "", fmt.Errorf("write ack: %w", err)
		}
		log.Packet(c.logger, log.Inbound, f.Payload)
		return string(f.Payload), nil
	}
}

// Exchange sends payload and returns the stub's reply.
func (c *Client) Exchange(ctx context.Context, payload string) (string, error) {
	if err := c.Send(ctx, payload); err != nil {
		return "", err
	}
	return c.Reply(ctx)
}

// Interrupt sends a break-in request.
func (c *Client) Interrupt() error {
	_, err := c.conn.Write([]byte{packet.Interrupt})
	return err
}

// next returns the next frame, reading from the connection as needed.
func (c *Client) next(ctx context.Context) (packet.Frame, error) {
	start := time.Now()
	deadline := start.Add(c.timeout)
	buf := make([]byte, 4096)
	for len(c.frames) == 0 {
		if err := ctx.Err(); err != nil {
			return packet.Frame{}, err
		}
		if time.Now().After(deadline) {
			return packet.Frame{}, &stuberrors.TimeoutError{Operation: "reply", Duration: time.Since(start)}
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(readPoll))
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
			frames, used, splitErr := packet.Split(c.pending)
			c.pending = c.pending[used:]
			c.frames = append(c.frames, frames...)
			if splitErr != nil {
				return packet.Frame{}, &stuberrors.ProtocolError{Op: "read reply", Cause: splitErr}
			}
		}
		if err != nil && !transport.IsTimeout(err) {
			if len(c.frames) > 0 {
				break
			}
			return packet.Frame{}, fmt.Errorf("read reply: %w", err)
		}
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f, nil
}
