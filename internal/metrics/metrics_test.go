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

package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(packetsTotal.WithLabelValues("read_memory"))
	Packet("read_memory")
	Packet("read_memory")
	assert.Equal(t, before+2, testutil.ToFloat64(packetsTotal.WithLabelValues("read_memory")))

	active := testutil.ToFloat64(sessionsActive)
	SessionStarted("tcp")
	assert.Equal(t, active+1, testutil.ToFloat64(sessionsActive))
	SessionEnded("detach")
	assert.Equal(t, active, testutil.ToFloat64(sessionsActive))

	in := testutil.ToFloat64(bytesTotal.WithLabelValues("in"))
	BytesIn(5)
	assert.Equal(t, in+5, testutil.ToFloat64(bytesTotal.WithLabelValues("in")))

	failed := testutil.ToFloat64(regmapReloads.WithLabelValues("error"))
	RegmapReload(false)
	assert.Equal(t, failed+1, testutil.ToFloat64(regmapReloads.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	FramingError("bad_checksum")
	Reply("query", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `gdbstub_framing_errors_total{kind="bad_checksum"}`)
	assert.Contains(t, body, "gdbstub_command_duration_seconds")
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, addr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(b), "gdbstub_")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
