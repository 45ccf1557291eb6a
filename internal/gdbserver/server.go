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

package gdbserver

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/regmap"
	"github.com/tombee/gdbstub/internal/target"
	"github.com/tombee/gdbstub/internal/transport"
)

// Recorder stores finished sessions.
type Recorder interface {
	Record(ctx context.Context, s Summary) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Listener transport.Listener
	Target   target.Target

	// Maps returns the register maps for the next session. It is called
	// once per connection so reloaded maps apply without a restart.
	// Nil selects the built-in maps.
	Maps func() *regmap.Set

	// Session carries the per-session settings. Its Maps and Logger
	// fields are filled in by the server.
	Session SessionConfig

	// Recorder, when set, receives a Summary for every connection.
	Recorder Recorder

	Logger *slog.Logger
}

// Server accepts debugger connections and serves them one at a time.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger

	sessions atomic.Int64
}

// NewServer creates a server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Maps == nil {
		builtin := regmap.Builtin()
		cfg.Maps = func() *regmap.Set { return builtin }
	}
	return &Server{
		cfg:    cfg,
		logger: log.WithComponent(cfg.Logger, "gdbserver"),
	}
}

// Sessions returns the number of connections served so far.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// Serve accepts connections until ctx is cancelled, the listener closes or
// the target exits. Connections are served sequentially.
func (s *Server) Serve(ctx context.Context) error {
	var exited <-chan struct{}
	if e, ok := s.cfg.Target.(target.Exiter); ok {
		exited = e.Exited()
	}

	s.logger.Info("waiting for debugger", "addr", s.cfg.Listener.Addr(), log.ArchKey, s.cfg.Target.Arch())
	for {
		conn, err := s.cfg.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}

		s.handle(ctx, conn)

		select {
		case <-exited:
			s.logger.Info("target exited, no longer accepting debuggers")
			return nil
		default:
		}
	}
}

func (s *Server) handle(ctx context.Context, conn transport.Conn) {
	defer conn.Close()
	s.sessions.Add(1)

	cfg := s.cfg.Session
	cfg.Maps = s.cfg.Maps()
	cfg.Logger = s.cfg.Logger

	sess, err := NewSession(conn, s.cfg.Target, cfg)
	if err != nil {
		s.logger.Error("cannot start session",
			log.RemoteKey, conn.RemoteAddr(),
			log.ArchKey, s.cfg.Target.Arch(),
			log.Error(err),
		)
		now := time.Now()
		s.record(ctx, Summary{
			ID:        uuid.NewString(),
			Remote:    conn.RemoteAddr(),
			Transport: cfg.Transport,
			Arch:      s.cfg.Target.Arch(),
			Start:     now,
			End:       now,
			Reason:    EndError,
			Error:     err.Error(),
		})
		return
	}

	summary, err := sess.Run(ctx)
	if err != nil {
		s.logger.Warn("session ended with error", log.SessionIDKey, sess.ID(), log.Error(err))
	}
	s.record(ctx, summary)
}

func (s *Server) record(ctx context.Context, summary Summary) {
	if s.cfg.Recorder == nil {
		return
	}
	// The session may have ended because ctx was cancelled; still record it.
	ctx = context.WithoutCancel(ctx)
	if err := s.cfg.Recorder.Record(ctx, summary); err != nil {
		s.logger.Warn("failed to record session", log.Error(err))
	}
}
