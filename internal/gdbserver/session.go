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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tombee/gdbstub/internal/ledger"
	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/metrics"
	"github.com/tombee/gdbstub/internal/regmap"
	"github.com/tombee/gdbstub/internal/rsp/packet"
	"github.com/tombee/gdbstub/internal/target"
	"github.com/tombee/gdbstub/internal/transport"
)

// DefaultPollInterval is how long a read waits before the session rechecks
// its context and the target.
const DefaultPollInterval = 10 * time.Millisecond

const tracerName = "github.com/tombee/gdbstub/internal/gdbserver"

// EndReason says why a session ended.
type EndReason string

const (
	EndDetach     EndReason = "detach"
	EndKill       EndReason = "kill"
	EndDisconnect EndReason = "disconnect"
	EndCancelled  EndReason = "cancelled"
	EndError      EndReason = "error"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// Maps resolves the target's architecture to a register map.
	// Nil selects the built-in maps.
	Maps *regmap.Set

	// Transport names the transport for logs, metrics and history.
	Transport string

	// PollInterval bounds each blocking read. Zero selects DefaultPollInterval.
	PollInterval time.Duration

	// MaxPacketSize is the largest payload accepted and advertised.
	// Zero selects packet.MaxPacketSize.
	MaxPacketSize int

	Logger *slog.Logger
}

// Summary describes a finished session.
type Summary struct {
	ID        string
	Remote    string
	Transport string
	Arch      string
	Start     time.Time
	End       time.Time
	Commands  int
	Reason    EndReason
	Error     string
}

// Session serves one debugger connection. It is driven by Run and is not
// safe for concurrent use.
type Session struct {
	id      string
	conn    transport.Conn
	target  target.Target
	catalog *regmap.Catalog
	ledger  *ledger.Ledger
	decoder *packet.Decoder
	logger  *slog.Logger
	tracer  trace.Tracer
	cfg     SessionConfig

	extended        bool
	detached        bool
	killed          bool
	descriptionSent bool
	pendingStop     bool

	// resumed is set while the target runs on this session's behalf.
	resumed bool

	queue    [][]byte
	commands int
	writeErr error

	framingLog *rate.Limiter
}

// NewSession binds conn to tgt. It fails with a *errors.NotFoundError when
// no register map covers the target's architecture.
func NewSession(conn transport.Conn, tgt target.Target, cfg SessionConfig) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Maps == nil {
		cfg.Maps = regmap.Builtin()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = packet.MaxPacketSize
	}

	id := uuid.NewString()
	logger := log.WithSession(cfg.Logger, id, conn.RemoteAddr(), cfg.Transport).
		With(log.ArchKey, tgt.Arch())

	m, err := cfg.Maps.Lookup(tgt.Arch())
	if err != nil {
		return nil, err
	}

	return &Session{
		id:         id,
		conn:       conn,
		target:     tgt,
		catalog:    regmap.Build(m, tgt.State(), tgt.BigEndian(), logger),
		ledger:     ledger.New(),
		decoder:    packet.NewDecoder(cfg.MaxPacketSize),
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		cfg:        cfg,
		framingLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Run serves the connection until the debugger detaches, kills the target,
// disconnects, or ctx is cancelled. The target is halted first. Unless the
// target was killed, the session's breakpoints and watchpoints are cleared
// when it ends. Run does not close the connection unless the debugger sent k.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	summary := Summary{
		ID:        s.id,
		Remote:    s.conn.RemoteAddr(),
		Transport: s.cfg.Transport,
		Arch:      s.target.Arch(),
		Start:     time.Now(),
	}

	ctx, span := s.tracer.Start(ctx, "rsp.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rsp.session_id", s.id),
			attribute.String("rsp.remote", summary.Remote),
			attribute.String("rsp.transport", s.cfg.Transport),
			attribute.String("rsp.arch", summary.Arch),
		),
	)
	defer span.End()

	metrics.SessionStarted(s.cfg.Transport)
	s.logger.Info("debugger attached", "registers", len(s.catalog.Mapped()))

	s.target.Halt()
	reason, err := s.serve(ctx)
	// A killed target is gone; otherwise the next debugger must not inherit
	// points it cannot see.
	if reason != EndKill {
		s.releasePoints()
	}

	summary.End = time.Now()
	summary.Commands = s.commands
	summary.Reason = reason
	if err != nil {
		summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("rsp.end_reason", string(reason)),
		attribute.Int("rsp.commands", s.commands),
	)
	metrics.SessionEnded(string(reason))
	s.logger.Info("debugger detached",
		"reason", reason,
		"commands", s.commands,
		log.DurationKey, summary.End.Sub(summary.Start).Milliseconds(),
	)
	return summary, err
}

type readResult struct {
	data []byte
	err  error
}

func (s *Session) serve(ctx context.Context) (EndReason, error) {
	done := make(chan struct{})
	defer close(done)
	reads := make(chan readResult)
	go s.readLoop(done, reads)

	for {
		switch {
		case s.killed:
			return EndKill, nil
		case s.detached:
			return EndDetach, nil
		case s.writeErr != nil:
			return disconnectReason(s.writeErr)
		}

		if !s.resumed && len(s.queue) > 0 {
			pkt := s.queue[0]
			s.queue = s.queue[1:]
			s.dispatch(ctx, pkt)
			continue
		}

		// A nil channel blocks, so halts are only observed while resumed.
		var halted <-chan struct{}
		if s.resumed {
			halted = s.target.Halted()
		}

		select {
		case <-ctx.Done():
			return EndCancelled, nil
		case r := <-reads:
			if r.err != nil {
				if !s.decoder.Idle() {
					s.logger.Debug("connection closed mid-packet")
				}
				return disconnectReason(r.err)
			}
			s.feed(ctx, r.data)
		case <-halted:
			s.onHalted()
		}
	}
}

// readLoop polls the connection with a short deadline and forwards data
// until done is closed or the connection fails.
func (s *Session) readLoop(done <-chan struct{}, out chan<- readResult) {
	buf := make([]byte, 4096)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval))
		n, err := s.conn.Read(buf)
		if n > 0 {
			select {
			case out <- readResult{data: bytes.Clone(buf[:n])}:
			case <-done:
				return
			}
		}
		if err != nil {
			if transport.IsTimeout(err) {
				select {
				case <-done:
					return
				default:
					continue
				}
			}
			select {
			case out <- readResult{err: err}:
			case <-done:
			}
			return
		}
	}
}

func disconnectReason(err error) (EndReason, error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return EndDisconnect, nil
	}
	return EndDisconnect, err
}

// feed runs received bytes through the decoder.
func (s *Session) feed(ctx context.Context, data []byte) {
	metrics.BytesIn(len(data))
	for _, b := range data {
		switch ev := s.decoder.Feed(b); ev {
		case packet.EventPacket:
			pkt := bytes.Clone(s.decoder.Packet())
			s.write([]byte{packet.Ack})
			log.Packet(s.logger, log.Inbound, pkt)
			if s.resumed {
				s.queue = append(s.queue, pkt)
				continue
			}
			s.dispatch(ctx, pkt)
			if s.killed || s.detached {
				return
			}
		case packet.EventInterrupt:
			metrics.Interrupt()
			if s.resumed {
				s.logger.Debug("interrupt requested")
				s.target.Halt()
			}
		case packet.EventBadChecksum:
			s.write([]byte{packet.Nack})
			s.framingError(ev)
		case packet.EventOverflow, packet.EventBadDigit:
			s.framingError(ev)
		}
	}
}

func (s *Session) framingError(ev packet.Event) {
	metrics.FramingError(ev.String())
	if s.framingLog.Allow() {
		s.logger.Debug("discarded malformed packet", "kind", ev.String())
	}
}

// dispatch handles one packet and sends the reply its outcome calls for.
func (s *Session) dispatch(ctx context.Context, pkt []byte) {
	s.commands++

	var cmd Command
	var args string
	if len(pkt) > 0 {
		cmd = Command(pkt[0])
		args = string(pkt[1:])
	}
	metrics.Packet(cmd.String())

	_, span := s.tracer.Start(ctx, "rsp."+cmd.String(),
		trace.WithAttributes(attribute.Int("rsp.args_len", len(args))),
	)
	start := time.Now()

	outcome := OutcomeUnsupported
	if h, ok := handlers[cmd]; ok {
		outcome = h(s, args)
	}
	if payload, ok := outcome.reply(); ok {
		s.send(payload)
	}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.String("rsp.outcome", outcome.String()))
	if outcome == OutcomeError {
		span.SetStatus(codes.Error, "E01")
	}
	span.End()

	metrics.Reply(cmd.String(), outcome.String(), elapsed)
	log.Command(s.logger, byte(cmd), outcome.String(), elapsed.Milliseconds())
}

// onHalted runs when the target stops after a resume or step.
func (s *Session) onHalted() {
	s.resumed = false
	if s.pendingStop {
		s.pendingStop = false
		s.sendStopReport()
	}
}

// resume starts the target and arranges for a stop report when it halts.
func (s *Session) resume(step bool) {
	s.pendingStop = true
	s.resumed = true
	if step {
		s.target.Step()
		return
	}
	s.target.Resume()
}

func (s *Session) send(payload string) {
	log.Packet(s.logger, log.Outbound, []byte(payload))
	s.write(packet.EncodeString(payload))
}

func (s *Session) write(b []byte) {
	if s.writeErr != nil {
		return
	}
	n, err := s.conn.Write(b)
	metrics.BytesOut(n)
	if err != nil {
		s.writeErr = err
	}
}
