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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the application protocol negotiated on quic connections.
const ALPN = "gdb-rsp"

const (
	quicIdleTimeout = 5 * time.Minute
	quicLinger      = 500 * time.Millisecond
)

// quicConn is the first bidirectional stream of a quic connection.
type quicConn struct {
	*quic.Stream
	conn *quic.Conn
}

// Close finishes the stream and gives the peer a moment to read the last
// reply before the connection is torn down.
func (c *quicConn) Close() error {
	err := c.Stream.Close()
	select {
	case <-c.conn.Context().Done():
	case <-time.After(quicLinger):
	}
	_ = c.conn.CloseWithError(0, "session ended")
	return err
}

func (c *quicConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

type quicListener struct {
	ln     *quic.Listener
	logger *slog.Logger
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  quicIdleTimeout,
		KeepAlivePeriod: quicIdleTimeout / 4,
	}
}

func listenQUIC(addr, certFile, keyFile string, logger *slog.Logger) (Listener, error) {
	if addr == "" {
		addr = DefaultTCPAddress
	}

	var cert tls.Certificate
	var err error
	switch {
	case certFile != "" && keyFile != "":
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
	case certFile == "" && keyFile == "":
		logger.Warn("no TLS certificate configured, using a self-signed one")
		cert, err = selfSignedCert()
	default:
		err = errors.New("both tls_cert and tls_key are required")
	}
	if err != nil {
		return nil, fmt.Errorf("quic tls: %w", err)
	}

	ln, err := quic.ListenAddr(addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen quic %s: %w", addr, err)
	}
	logger.Info("listening", "addr", ln.Addr().String())
	return &quicListener{ln: ln, logger: logger}, nil
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			l.logger.Debug("quic connection opened no stream", "remote", conn.RemoteAddr().String(), "error", err)
			_ = conn.CloseWithError(1, "no stream")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return &quicConn{Stream: stream, conn: conn}, nil
	}
}

func (l *quicListener) Close() error {
	return l.ln.Close()
}

func (l *quicListener) Addr() string {
	return l.ln.Addr().String()
}

// dialQUIC connects without verifying the server certificate, matching the
// self-signed default on the listening side.
func dialQUIC(ctx context.Context, addr string) (Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial quic %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream failed")
		return nil, fmt.Errorf("open quic stream: %w", err)
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "gdbstub"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
