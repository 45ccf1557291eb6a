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
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWSPath is the upgrade path when none is configured.
	DefaultWSPath = "/rsp"

	wsShutdownTimeout = 5 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// wsStream turns a websocket's message sequence into a byte stream.
// Each binary or text message contributes its payload in order.
type wsStream struct {
	ws     *websocket.Conn
	reader io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *wsStream) Read(b []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(b)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(b []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		err = s.ws.Close()
	})
	return err
}

// wrapWS gives a websocket read deadlines. gorilla treats a read timeout
// as fatal for the connection, so deadlines are emulated by pumpConn.
func wrapWS(ws *websocket.Conn) Conn {
	s := &wsStream{ws: ws}
	return newPumpConn(s, s, ws.RemoteAddr().String())
}

// wsListener serves one HTTP endpoint and hands each upgraded
// connection to Accept.
type wsListener struct {
	logger     *slog.Logger
	addr       string
	path       string
	upgrader   websocket.Upgrader
	httpServer *http.Server

	conns chan Conn

	mu        sync.Mutex
	closed    bool
	closeCh   chan struct{}
	closeOnce sync.Once
}

func listenWS(ctx context.Context, addr, path string, logger *slog.Logger) (Listener, error) {
	if addr == "" {
		addr = DefaultTCPAddress
	}
	if path == "" {
		path = DefaultWSPath
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		logger: logger,
		addr:   ln.Addr().String(),
		path:   path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Debuggers are not browsers; accept any origin.
				return true
			},
		},
		conns:   make(chan Conn),
		closeCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server stopped", "error", err)
		}
	}()

	logger.Info("websocket listener started", "address", l.addr, "path", path)
	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := wrapWS(ws)
	select {
	case l.conns <- conn:
		l.logger.Debug("websocket connection established", "remote", r.RemoteAddr)
	case <-l.closeCh:
		conn.Close()
	case <-r.Context().Done():
		conn.Close()
	}
}

func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.closeCh)

		ctx, cancel := context.WithTimeout(context.Background(), wsShutdownTimeout)
		defer cancel()
		err = l.httpServer.Shutdown(ctx)
	})
	return err
}

func (l *wsListener) Addr() string {
	return "ws://" + l.addr + l.path
}

// dialWS connects to a ws:// URL.
func dialWS(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return wrapWS(ws), nil
}
