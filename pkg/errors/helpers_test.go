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
	"testing"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

type visibleErr struct{}

func (visibleErr) Error() string { return "listener busy" }
func (visibleErr) IsUserVisible() bool { return true }
func (visibleErr) UserMessage() string { return "another session is active" }
func (visibleErr) Suggestion() string { return "wait for the debugger to detach" }

func TestWrap(t *testing.T) {
	if stuberrors.Wrap(nil, "closing") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := stuberrors.New("eof")
	err := stuberrors.Wrap(base, "reading packet")
	if err.Error() != "reading packet: eof" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !stuberrors.Is(err, base) {
		t.Error("wrapped error should match its base")
	}
}

func TestWrapf(t *testing.T) {
	if stuberrors.Wrapf(nil, "loading %s", "x") != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	nf := &stuberrors.NotFoundError{Resource: "register map", ID: "z80"}
	err := stuberrors.Wrapf(nf, "session %d", 7)
	if err.Error() != "session 7: register map not found: z80" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var target *stuberrors.NotFoundError
	if !stuberrors.As(err, &target) || target.ID != "z80" {
		t.Error("As should find the NotFoundError")
	}
}

func TestSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation",
			err:  stuberrors.Wrap(&stuberrors.ValidationError{Message: "bad", Suggestion: "fix it"}, "ctx"),
			want: "fix it",
		},
		{
			name: "user visible",
			err:  stuberrors.Wrap(visibleErr{}, "serve"),
			want: "wait for the debugger to detach",
		},
		{
			name: "plain",
			err:  stuberrors.New("boom"),
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stuberrors.Suggestion(tt.err); got != tt.want {
				t.Errorf("Suggestion() = %q, want %q", got, tt.want)
			}
		})
	}
}
