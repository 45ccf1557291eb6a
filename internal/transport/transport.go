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

// Package transport provides the byte streams a debugger connects over.
//
// Every transport yields a Conn: a duplex stream whose reads honour a
// deadline, so the session loop can poll without blocking forever.
// Listeners hand out one Conn per Accept.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

var (
	// ErrClosed is returned by Accept after Close.
	ErrClosed = errors.New("transport: listener closed")

	// ErrRemoteRefused is returned when a non-loopback peer is rejected.
	ErrRemoteRefused = errors.New("transport: remote connection refused")
)

// socketMode restricts a unix socket to its owner.
const socketMode = 0o600

// Kind names a transport.
type Kind string

const (
	KindTCP    Kind = "tcp"
	KindUnix   Kind = "unix"
	KindSerial Kind = "serial"
	KindQUIC   Kind = "quic"
	KindWS     Kind = "ws"
)

// Kinds lists every supported transport.
func Kinds() []Kind {
	return []Kind{KindTCP, KindUnix, KindSerial, KindQUIC, KindWS}
}

// Conn is one debugger connection.
type Conn interface {
	io.ReadWriteCloser

	// SetReadDeadline makes a pending or future Read fail with a timeout
	// error once t passes. A zero t disables the deadline.
	SetReadDeadline(t time.Time) error

	// RemoteAddr describes the peer for logs and history.
	RemoteAddr() string
}

// Listener accepts debugger connections.
type Listener interface {
	// Accept blocks until a connection arrives, ctx is done or the listener closes.
	Accept(ctx context.Context) (Conn, error)

	Close() error

	// Addr is the address clients connect to.
	Addr() string
}

// Config selects and configures a transport.
type Config struct {
	Kind Kind

	// Address is host:port for tcp, quic and ws.
	Address string

	// SocketPath is the filesystem path for unix.
	SocketPath string

	// SerialPort and Baud configure the serial line.
	SerialPort string
	Baud       int

	// TLSCert and TLSKey are PEM files for quic. A self-signed certificate
	// is generated when both are empty.
	TLSCert string
	TLSKey  string

	// WSPath is the HTTP path upgraded to a websocket.
	WSPath string

	// AllowRemote accepts tcp peers that are not on a loopback address.
	AllowRemote bool

	Logger *slog.Logger
}

// Listen opens a listener for cfg.Kind.
func Listen(ctx context.Context, cfg Config) (Listener, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "transport", "transport", string(cfg.Kind))

	switch cfg.Kind {
	case KindTCP, "":
		return listenTCP(ctx, cfg.Address, cfg.AllowRemote, logger)
	case KindUnix:
		return listenUnix(ctx, cfg.SocketPath, logger)
	case KindSerial:
		return listenSerial(cfg.SerialPort, cfg.Baud, logger)
	case KindQUIC:
		return listenQUIC(cfg.Address, cfg.TLSCert, cfg.TLSKey, logger)
	case KindWS:
		return listenWS(ctx, cfg.Address, cfg.WSPath, logger)
	}
	return nil, &stuberrors.NotFoundError{Resource: "transport", ID: string(cfg.Kind)}
}

// Dial connects to a stub as a client. addr is interpreted per kind: host:port,
// socket path, serial device, or ws URL.
func Dial(ctx context.Context, kind Kind, addr string) (Conn, error) {
	switch kind {
	case KindTCP, "":
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return wrapNetConn(c), nil
	case KindUnix:
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", addr)
		if err != nil {
			return nil, err
		}
		return wrapNetConn(c), nil
	case KindSerial:
		return openSerial(addr, 0)
	case KindQUIC:
		return dialQUIC(ctx, addr)
	case KindWS:
		return dialWS(ctx, addr)
	}
	return nil, fmt.Errorf("transport: cannot dial %q", kind)
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
