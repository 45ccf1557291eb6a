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

// Package shared holds the flag state, output helpers and exit codes used by
// every gdbstub command.
package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitFailed     = 1
	ExitUsage      = 2
	ExitConfig     = 3
	ExitConnection = 4
	ExitProtocol   = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError reports bad arguments or flags.
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// NewConfigError reports a configuration that could not be loaded or written.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Cause: cause}
}

// NewConnectionError reports a stub that could not be reached.
func NewConnectionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConnection, Message: msg, Cause: cause}
}

// NewProtocolError reports a stub that answered with something unusable.
func NewProtocolError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitProtocol, Message: msg, Cause: cause}
}

// Classify wraps err in an ExitError whose code follows the typed error in
// its chain. ExitErrors pass through unchanged.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	var (
		cfgErr   *stuberrors.ConfigError
		valErr   *stuberrors.ValidationError
		protoErr *stuberrors.ProtocolError
		toErr    *stuberrors.TimeoutError
	)
	switch {
	case errors.As(err, &cfgErr):
		return NewConfigError(msg, err)
	case errors.As(err, &valErr):
		return NewUsageError(msg, err)
	case errors.As(err, &protoErr), errors.As(err, &toErr):
		return NewProtocolError(msg, err)
	}
	return &ExitError{Code: ExitFailed, Message: msg, Cause: err}
}

// ExitCode returns the code HandleExitError would exit with.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and any suggestion found in its chain.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	if suggestion := stuberrors.Suggestion(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}
