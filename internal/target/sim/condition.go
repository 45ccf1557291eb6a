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

package sim

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// conditions holds compiled breakpoint conditions keyed by client address.
// Registers are in scope by state symbol, e.g. "EAX == 3 && ECX > 0x10".
type conditions map[uint64]*vm.Program

func compileConditions(src map[uint64]string, symbols []string) (conditions, error) {
	if len(src) == 0 {
		return nil, nil
	}

	env := make(map[string]interface{}, len(symbols))
	for _, s := range symbols {
		env[s] = 0
	}

	out := make(conditions, len(src))
	for addr, expression := range src {
		if expression == "" {
			continue
		}
		prog, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, &stuberrors.ValidationError{
				Field:      fmt.Sprintf("target.break_conditions[%#x]", addr),
				Message:    fmt.Sprintf("failed to compile condition: %s", err.Error()),
				Suggestion: "reference registers by state name, e.g. EAX == 3",
			}
		}
		out[addr] = prog
	}
	return out, nil
}

// eval reports whether the breakpoint at addr should halt. Addresses with no
// condition always halt, and so does a condition that fails to evaluate.
func (c conditions) eval(addr uint64, regs map[string]interface{}) (bool, error) {
	prog, ok := c[addr]
	if !ok {
		return true, nil
	}
	result, err := expr.Run(prog, regs)
	if err != nil {
		return true, err
	}
	hit, ok := result.(bool)
	if !ok {
		return true, fmt.Errorf("condition at %#x returned %T", addr, result)
	}
	return hit, nil
}
