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

// Package jq applies jq filters to command output.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds a single filter run.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize caps the JSON size of filtered data (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor runs jq filters with a timeout and an input size limit.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64
}

// NewExecutor creates an executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
	}
}

// Execute runs expression against data, which must already be made of
// plain JSON values (see Normalize). A single result is returned as is;
// several results come back as a slice and none as nil.
func (e *Executor) Execute(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}

	if err := e.validateInputSize(data); err != nil {
		return nil, err
	}

	code, err := compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var results []interface{}
	iter := code.RunWithContext(execCtx, data)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if execCtx.Err() != nil {
				return nil, fmt.Errorf("execution timeout after %v", e.timeout)
			}
			return nil, err
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	}
	return results, nil
}

// Validate reports whether expression parses and compiles.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := compile(expression)
	return err
}

// Normalize converts v to the maps, slices and scalars jq operates on by
// round-tripping it through encoding/json.
func Normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return out, nil
}

func compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	return code, nil
}

func (e *Executor) validateInputSize(data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if int64(len(jsonData)) > e.maxInputSize {
		return fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)",
			len(jsonData), e.maxInputSize)
	}

	return nil
}
