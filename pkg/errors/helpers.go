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

// Package errors holds the typed errors shared by the stub, its transports and the CLI.
package errors

import (
	"errors"
	"fmt"
)

// Wrap annotates err with message. It returns nil when err is nil.
//
// Usage:
//
//	if err := ln.Close(); err != nil {
//	    return errors.Wrap(err, "closing listener")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
//
// Usage:
//
//	if err := loadMap(path); err != nil {
//	    return errors.Wrapf(err, "loading register map %s", path)
//	}
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
//
// Usage:
//
//	var nf *NotFoundError
//	if errors.As(err, &nf) {
//	    logger.Error("no register map", "arch", nf.ID)
//	}
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Suggestion returns the first actionable suggestion found in err's chain, or "".
func Suggestion(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Suggestion
	}
	var uv UserVisibleError
	if errors.As(err, &uv) && uv.IsUserVisible() {
		return uv.Suggestion()
	}
	return ""
}
