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
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// pumpConn adds read deadlines to a stream that lacks them. A goroutine
// reads from the stream and hands chunks to Read, which waits for a chunk,
// the deadline, or close.
type pumpConn struct {
	rwc    io.ReadWriteCloser
	src    io.Reader
	remote string

	chunks chan []byte
	closed chan struct{}
	eof    chan struct{}
	err    error

	mu       sync.Mutex
	deadline time.Time
	pending  []byte

	closeOnce sync.Once
}

// newPumpConn reads from src and writes and closes through rwc. src may be rwc.
func newPumpConn(rwc io.ReadWriteCloser, src io.Reader, remote string) *pumpConn {
	if src == nil {
		src = rwc
	}
	p := &pumpConn{
		rwc:    rwc,
		src:    src,
		remote: remote,
		chunks: make(chan []byte),
		closed: make(chan struct{}),
		eof:    make(chan struct{}),
	}
	go p.pump()
	return p
}

func (p *pumpConn) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := p.src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.chunks <- chunk:
			case <-p.closed:
				return
			}
		}
		if err != nil {
			p.err = err
			close(p.eof)
			return
		}
	}
}

func (p *pumpConn) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	deadline := p.deadline
	p.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case chunk := <-p.chunks:
		n := copy(b, chunk)
		if n < len(chunk) {
			p.mu.Lock()
			p.pending = chunk[n:]
			p.mu.Unlock()
		}
		return n, nil
	case <-p.eof:
		return 0, p.err
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	case <-p.closed:
		return 0, net.ErrClosed
	}
}

func (p *pumpConn) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *pumpConn) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.rwc.Close()
	})
	return err
}

func (p *pumpConn) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	p.deadline = t
	p.mu.Unlock()
	return nil
}

func (p *pumpConn) RemoteAddr() string {
	return p.remote
}
