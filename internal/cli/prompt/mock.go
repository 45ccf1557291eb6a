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

package prompt

import (
	"context"
	"fmt"
	"slices"
)

// MockPrompter implements Prompter with scripted responses for testing.
// When the script runs out every prompt returns its default.
type MockPrompter struct {
	responses    []interface{}
	currentIndex int
	interactive  bool
	callLog      []string
}

// NewMockPrompter creates a new mock prompter with pre-scripted responses.
func NewMockPrompter(interactive bool, responses ...interface{}) *MockPrompter {
	return &MockPrompter{
		responses:   responses,
		interactive: interactive,
	}
}

func (mp *MockPrompter) next(call string) (interface{}, bool) {
	mp.callLog = append(mp.callLog, call)
	if mp.currentIndex >= len(mp.responses) {
		return nil, false
	}
	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++
	return resp, true
}

// Input returns the next string response after running validate on it.
func (mp *MockPrompter) Input(ctx context.Context, message, def string, validate func(string) error) (string, error) {
	resp, ok := mp.next(fmt.Sprintf("Input(%s)", message))
	if !ok {
		return def, nil
	}
	str, isStr := resp.(string)
	if !isStr {
		return "", fmt.Errorf("mock response is not a string")
	}
	if validate != nil {
		if err := validate(str); err != nil {
			return "", err
		}
	}
	return str, nil
}

// Confirm returns the next boolean response.
func (mp *MockPrompter) Confirm(ctx context.Context, message string, def bool) (bool, error) {
	resp, ok := mp.next(fmt.Sprintf("Confirm(%s)", message))
	if !ok {
		return def, nil
	}
	b, isBool := resp.(bool)
	if !isBool {
		return false, fmt.Errorf("mock response is not a boolean")
	}
	return b, nil
}

// Select returns the next response, which must be one of options.
func (mp *MockPrompter) Select(ctx context.Context, message string, options []string, def string) (string, error) {
	resp, ok := mp.next(fmt.Sprintf("Select(%s)", message))
	if !ok {
		return def, nil
	}
	str, isStr := resp.(string)
	if !isStr || !slices.Contains(options, str) {
		return "", fmt.Errorf("mock response %v is not one of %v", resp, options)
	}
	return str, nil
}

// IsInteractive implements Prompter.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// Calls returns the prompts shown so far.
func (mp *MockPrompter) Calls() []string {
	return mp.callLog
}
