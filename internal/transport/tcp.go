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

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	// DefaultTCPAddress is used when no address is configured.
	DefaultTCPAddress = "127.0.0.1:2159"

	// acceptPoll bounds how long Accept blocks before rechecking its context.
	acceptPoll = 250 * time.Millisecond
)

type netConn struct {
	net.Conn
}

func wrapNetConn(c net.Conn) Conn {
	return &netConn{Conn: c}
}

func (c *netConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return c.Conn.LocalAddr().String()
}

// deadlineListener is a net.Listener whose Accept can time out.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// netListener adapts tcp and unix listeners.
type netListener struct {
	ln          deadlineListener
	allowRemote bool
	logger      *slog.Logger
	onClose     func()
}

func listenTCP(ctx context.Context, addr string, allowRemote bool, logger *slog.Logger) (Listener, error) {
	if addr == "" {
		addr = DefaultTCPAddress
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	logger.Info("listening", "addr", ln.Addr().String())
	return &netListener{ln: ln.(*net.TCPListener), allowRemote: allowRemote, logger: logger}, nil
}

func (l *netListener) Accept(ctx context.Context) (Conn, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = l.ln.SetDeadline(time.Now().Add(acceptPoll))
		c, err := l.ln.Accept()
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}

		if !l.allowRemote && !isLoopback(c.RemoteAddr()) {
			l.logger.Warn("refusing remote debugger", "remote", c.RemoteAddr().String())
			c.Close()
			continue
		}
		return wrapNetConn(c), nil
	}
}

func (l *netListener) Close() error {
	err := l.ln.Close()
	if l.onClose != nil {
		l.onClose()
	}
	return err
}

func (l *netListener) Addr() string {
	return l.ln.Addr().String()
}

func isLoopback(addr net.Addr) bool {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return true
	}
	return tcp.IP.IsLoopback()
}
