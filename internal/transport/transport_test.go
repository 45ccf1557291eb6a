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
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// roundTrip accepts one connection on ln, dials it with dial, and checks
// bytes flow both ways and that an idle read times out.
func roundTrip(t *testing.T, ln Listener, dial func(ctx context.Context) (Conn, error)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	client, err := dial(ctx)
	require.NoError(t, err)
	defer client.Close()

	// quic only announces a stream once data flows on it.
	_, err = client.Write([]byte("$?#3f"))
	require.NoError(t, err)

	var server Conn
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept failed: %v", err)
	case <-ctx.Done():
		t.Fatal("accept timed out")
	}
	defer server.Close()
	assert.NotEmpty(t, server.RemoteAddr())

	got := readN(t, server, 5)
	assert.Equal(t, "$?#3f", string(got))

	_, err = server.Write([]byte("+$OK#9a"))
	require.NoError(t, err)
	assert.Equal(t, "+$OK#9a", string(readN(t, client, 7)))

	require.NoError(t, server.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	buf := make([]byte, 8)
	_, err = server.Read(buf)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout, got %v", err)

	// A timed out read leaves the connection usable.
	require.NoError(t, server.SetReadDeadline(time.Time{}))
	_, err = client.Write([]byte("+"))
	require.NoError(t, err)
	assert.Equal(t, "+", string(readN(t, server, 1)))
}

func readN(t *testing.T, c Conn, n int) []byte {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	defer c.SetReadDeadline(time.Time{})
	buf := make([]byte, n)
	_, err := io.ReadFull(c, buf)
	require.NoError(t, err)
	return buf
}

func TestTCPRoundTrip(t *testing.T) {
	ln, err := Listen(context.Background(), Config{Kind: KindTCP, Address: "127.0.0.1:0", Logger: discardLogger()})
	require.NoError(t, err)
	defer ln.Close()

	roundTrip(t, ln, func(ctx context.Context) (Conn, error) {
		return Dial(ctx, KindTCP, ln.Addr())
	})
}

func TestUnixRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets not supported")
	}
	path := filepath.Join(t.TempDir(), "stub.sock")

	ln, err := Listen(context.Background(), Config{Kind: KindUnix, SocketPath: path, Logger: discardLogger()})
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(socketMode), fi.Mode().Perm())

	roundTrip(t, ln, func(ctx context.Context) (Conn, error) {
		return Dial(ctx, KindUnix, path)
	})

	require.NoError(t, ln.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket should be removed on close")
}

func TestUnixReplacesStaleSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets not supported")
	}
	path := filepath.Join(t.TempDir(), "stub.sock")

	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	// Leave the file behind the way a crashed process would.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()

	ln, err := Listen(context.Background(), Config{Kind: KindUnix, SocketPath: path, Logger: discardLogger()})
	require.NoError(t, err)
	defer ln.Close()
}

func TestWebSocketRoundTrip(t *testing.T) {
	ln, err := Listen(context.Background(), Config{Kind: KindWS, Address: "127.0.0.1:0", Logger: discardLogger()})
	require.NoError(t, err)
	defer ln.Close()
	assert.Contains(t, ln.Addr(), DefaultWSPath)

	roundTrip(t, ln, func(ctx context.Context) (Conn, error) {
		return Dial(ctx, KindWS, ln.Addr())
	})
}

func TestQUICRoundTrip(t *testing.T) {
	ln, err := Listen(context.Background(), Config{Kind: KindQUIC, Address: "127.0.0.1:0", Logger: discardLogger()})
	require.NoError(t, err)
	defer ln.Close()

	roundTrip(t, ln, func(ctx context.Context) (Conn, error) {
		return Dial(ctx, KindQUIC, ln.Addr())
	})
}

func TestQUICRequiresBothKeyFiles(t *testing.T) {
	_, err := Listen(context.Background(), Config{
		Kind:    KindQUIC,
		Address: "127.0.0.1:0",
		TLSCert: "cert.pem",
		Logger:  discardLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls_key")
}

func TestAcceptHonoursContext(t *testing.T) {
	ln, err := Listen(context.Background(), Config{Kind: KindTCP, Address: "127.0.0.1:0", Logger: discardLogger()})
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcceptAfterClose(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{name: "tcp", kind: KindTCP},
		{name: "ws", kind: KindWS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ln, err := Listen(context.Background(), Config{Kind: tt.kind, Address: "127.0.0.1:0", Logger: discardLogger()})
			require.NoError(t, err)
			require.NoError(t, ln.Close())

			_, err = ln.Accept(context.Background())
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestListenUnknownKind(t *testing.T) {
	_, err := Listen(context.Background(), Config{Kind: "carrier-pigeon"})
	require.Error(t, err)

	var nf *stuberrors.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "transport", nf.Resource)
}

func TestSerialRequiresPort(t *testing.T) {
	_, err := Listen(context.Background(), Config{Kind: KindSerial, Logger: discardLogger()})
	assert.Error(t, err)
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback(&net.TCPAddr{IP: net.ParseIP("127.0.0.1")}))
	assert.True(t, isLoopback(&net.TCPAddr{IP: net.ParseIP("::1")}))
	assert.False(t, isLoopback(&net.TCPAddr{IP: net.ParseIP("192.0.2.10")}))
	assert.True(t, isLoopback(&net.UnixAddr{Name: "/tmp/x", Net: "unix"}))
}

type pipeRWC struct {
	*io.PipeReader
	w *io.PipeWriter
}

func (p *pipeRWC) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeRWC) Close() error {
	p.PipeReader.Close()
	return p.w.Close()
}

func TestPumpConn(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	conn := newPumpConn(&pipeRWC{PipeReader: inR, w: outW}, nil, "pipe")
	defer conn.Close()

	t.Run("deadline", func(t *testing.T) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
		_, err := conn.Read(make([]byte, 4))
		assert.True(t, IsTimeout(err))
	})

	t.Run("expired deadline", func(t *testing.T) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(-time.Second)))
		_, err := conn.Read(make([]byte, 4))
		assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	})

	t.Run("short reads keep the remainder", func(t *testing.T) {
		require.NoError(t, conn.SetReadDeadline(time.Time{}))
		go inW.Write([]byte("$g#67"))

		buf := make([]byte, 2)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "$g", string(buf[:n]))

		rest := make([]byte, 8)
		n, err = conn.Read(rest)
		require.NoError(t, err)
		assert.Equal(t, "#67", string(rest[:n]))
	})

	t.Run("write", func(t *testing.T) {
		go conn.Write([]byte("+"))
		buf := make([]byte, 1)
		_, err := io.ReadFull(outR, buf)
		require.NoError(t, err)
		assert.Equal(t, "+", string(buf))
	})

	t.Run("eof", func(t *testing.T) {
		inW.Close()
		_, err := conn.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	})

	assert.Equal(t, "pipe", conn.RemoteAddr())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(os.ErrDeadlineExceeded))
	assert.True(t, IsTimeout(&net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}))
	assert.False(t, IsTimeout(io.EOF))
	assert.False(t, IsTimeout(nil))
}
