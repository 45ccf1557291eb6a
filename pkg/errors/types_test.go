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

package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *stuberrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &stuberrors.ValidationError{
				Field:      "server.transport",
				Message:    "unknown transport \"pigeon\"",
				Suggestion: "Use one of tcp, unix, serial, quic, ws",
			},
			wantMsg: "validation failed on server.transport: unknown transport \"pigeon\"",
		},
		{
			name:    "without field",
			err:     &stuberrors.ValidationError{Message: "empty register map"},
			wantMsg: "validation failed: empty register map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &stuberrors.NotFoundError{Resource: "register map", ID: "z80"}
	if got, want := err.Error(), "register map not found: z80"; got != want {
		t.Errorf("NotFoundError.Error() = %q, want %q", got, want)
	}
}

func TestProtocolError(t *testing.T) {
	cause := fmt.Errorf("bad digit")
	tests := []struct {
		name    string
		err     *stuberrors.ProtocolError
		wantMsg string
	}{
		{
			name:    "op only",
			err:     &stuberrors.ProtocolError{Op: "read reply"},
			wantMsg: "protocol error during read reply",
		},
		{
			name:    "with packet and cause",
			err:     &stuberrors.ProtocolError{Op: "checksum", Packet: "T05", Cause: cause},
			wantMsg: "protocol error during checksum (packet \"T05\"): bad digit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ProtocolError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}

	wrapped := &stuberrors.ProtocolError{Op: "checksum", Cause: cause}
	if !errors.Is(wrapped, cause) {
		t.Error("ProtocolError should unwrap to its cause")
	}

	var classifier stuberrors.ErrorClassifier = wrapped
	if classifier.ErrorType() != "protocol" || !classifier.IsRetryable() {
		t.Errorf("unexpected classification %q retryable=%v", classifier.ErrorType(), classifier.IsRetryable())
	}
}

func TestConfigError(t *testing.T) {
	cause := fmt.Errorf("yaml: line 3")
	err := &stuberrors.ConfigError{Key: "regmaps.dir", Reason: "cannot parse", Cause: cause}

	if got, want := err.Error(), "config error at regmaps.dir: cannot parse"; got != want {
		t.Errorf("ConfigError.Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("ConfigError should unwrap to its cause")
	}

	noKey := &stuberrors.ConfigError{Reason: "missing file"}
	if got, want := noKey.Error(), "config error: missing file"; got != want {
		t.Errorf("ConfigError.Error() = %q, want %q", got, want)
	}
}

func TestTimeoutError(t *testing.T) {
	err := &stuberrors.TimeoutError{Operation: "probe reply", Duration: 2 * time.Second}
	if got, want := err.Error(), "probe reply operation timed out after 2s"; got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
	if !err.IsRetryable() {
		t.Error("TimeoutError should be retryable")
	}
}
