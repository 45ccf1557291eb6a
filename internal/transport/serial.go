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
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// DefaultBaud is used when no baud rate is configured.
const DefaultBaud = 115200

func openSerial(port string, baud int) (Conn, error) {
	if port == "" {
		return nil, errors.New("transport: serial port is required")
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	rwc, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	return newPumpConn(rwc, nil, port), nil
}

// serialListener hands out the serial line as a connection. Each Accept
// reopens the port, so a new debugger can attach after the last one left.
type serialListener struct {
	port   string
	baud   int
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func listenSerial(port string, baud int, logger *slog.Logger) (Listener, error) {
	if port == "" {
		return nil, errors.New("transport: serial port is required")
	}
	logger.Info("serving serial line", "port", port, "baud", baud)
	return &serialListener{port: port, baud: baud, logger: logger}, nil
}

func (l *serialListener) Accept(ctx context.Context) (Conn, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openSerial(l.port, l.baud)
}

func (l *serialListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *serialListener) Addr() string {
	return l.port
}
