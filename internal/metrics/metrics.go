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

// Package metrics exposes the stub's Prometheus metrics and the helpers
// the server uses to record them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAddress is where the metrics endpoint listens unless configured.
const DefaultAddress = "127.0.0.1:9464"

var (
	// sessionsTotal tracks debugger sessions by transport
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_sessions_total",
			Help: "Total debugger sessions by transport",
		},
		[]string{"transport"},
	)

	// sessionsEnded tracks finished sessions by end reason
	sessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_sessions_ended_total",
			Help: "Total finished debugger sessions by end reason",
		},
		[]string{"reason"},
	)

	// sessionsActive tracks sessions currently attached
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gdbstub_sessions_active",
			Help: "Number of currently attached debugger sessions",
		},
	)

	// packetsTotal tracks decoded packets by command
	packetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_packets_total",
			Help: "Total packets received by command",
		},
		[]string{"command"},
	)

	// repliesTotal tracks handler outcomes
	repliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_replies_total",
			Help: "Total command outcomes by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// commandDuration tracks handler latency
	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gdbstub_command_duration_seconds",
			Help:    "Time spent handling a command",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
		[]string{"command"},
	)

	// framingErrors tracks malformed input absorbed by the decoder
	framingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_framing_errors_total",
			Help: "Total framing errors by kind",
		},
		[]string{"kind"},
	)

	// interruptsTotal tracks break-in requests from the debugger
	interruptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdbstub_interrupts_total",
			Help: "Total interrupt requests received",
		},
	)

	// bytesTotal tracks wire traffic
	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_bytes_total",
			Help: "Total bytes on the wire by direction",
		},
		[]string{"direction"},
	)

	// regmapReloads tracks register map reloads
	regmapReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdbstub_regmap_reloads_total",
			Help: "Total register map reloads by result",
		},
		[]string{"result"},
	)
)

// SessionStarted records a new session.
func SessionStarted(transport string) {
	sessionsTotal.WithLabelValues(transport).Inc()
	sessionsActive.Inc()
}

// SessionEnded records the end of a session.
func SessionEnded(reason string) {
	sessionsEnded.WithLabelValues(reason).Inc()
	sessionsActive.Dec()
}

// Packet records a decoded packet.
func Packet(command string) {
	packetsTotal.WithLabelValues(command).Inc()
}

// Reply records a handler outcome and how long the handler took.
func Reply(command, outcome string, d time.Duration) {
	repliesTotal.WithLabelValues(command, outcome).Inc()
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// FramingError records a packet the decoder discarded.
func FramingError(kind string) {
	framingErrors.WithLabelValues(kind).Inc()
}

// Interrupt records a break-in request.
func Interrupt() {
	interruptsTotal.Inc()
}

// BytesIn records bytes read from the debugger.
func BytesIn(n int) {
	bytesTotal.WithLabelValues("in").Add(float64(n))
}

// BytesOut records bytes written to the debugger.
func BytesOut(n int) {
	bytesTotal.WithLabelValues("out").Add(float64(n))
}

// RegmapReload records a register map reload attempt.
func RegmapReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	regmapReloads.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		addr = DefaultAddress
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
