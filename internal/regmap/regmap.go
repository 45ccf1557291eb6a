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

// Package regmap maps a target's CPU state onto debugger register numbers.
//
// A Map is the static per-architecture table. A Set groups maps by
// architecture and is handed to each session. A Catalog is built from a Map
// and the live target's state list when a session starts, and produces the
// target description document.
package regmap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// SchemaConstraint is the range of map file schema versions this build reads.
const SchemaConstraint = "^1.0"

// MaxRegisterNumber bounds register numbers accepted from map files.
const MaxRegisterNumber = 1023

// RegType is the semantic register type written to the target description.
type RegType string

const (
	TypeInt        RegType = "int"
	TypeCodePtr    RegType = "code_ptr"
	TypeDataPtr    RegType = "data_ptr"
	TypeI387Ext    RegType = "i387_ext"
	TypeI386Eflags RegType = "i386_eflags"
)

// Valid reports whether t is a known register type.
func (t RegType) Valid() bool {
	switch t {
	case TypeInt, TypeCodePtr, TypeDataPtr, TypeI387Ext, TypeI386Eflags:
		return true
	}
	return false
}

// Entry binds one target state symbol to a debugger register.
type Entry struct {
	// State is the target's symbol for the value.
	State string `yaml:"state" json:"state"`

	// Name is the register name the debugger sees.
	Name string `yaml:"name" json:"name"`

	// Number is the protocol register number. Numbers may have gaps.
	Number int `yaml:"number" json:"number"`

	// StopReport includes the register in every stop reply.
	StopReport bool `yaml:"stop_report,omitempty" json:"stop_report,omitempty"`

	// Type defaults to int.
	Type RegType `yaml:"type,omitempty" json:"type,omitempty"`
}

// Map is the register layout for one architecture.
type Map struct {
	// Schema is the map file format version.
	Schema string `yaml:"schema" json:"schema"`

	// Arch is the name targets report, e.g. "i486".
	Arch string `yaml:"arch" json:"arch"`

	// Architecture is written to <architecture> in the description, e.g. "i386".
	Architecture string `yaml:"architecture" json:"architecture"`

	// Feature is the description feature name, e.g. "org.gnu.gdb.i386.core".
	Feature string `yaml:"feature" json:"feature"`

	Registers []Entry `yaml:"registers" json:"registers"`

	// Source is where the map came from: "builtin" or a file path.
	Source string `yaml:"-" json:"source"`
}

// Validate checks the map for structural problems.
func (m *Map) Validate() error {
	if m.Arch == "" {
		return &stuberrors.ValidationError{
			Field:      "arch",
			Message:    "register map has no architecture name",
			Suggestion: "Set arch to the name the target reports, e.g. i486",
		}
	}

	if err := checkSchema(m.Schema); err != nil {
		return err
	}

	if len(m.Registers) == 0 {
		return &stuberrors.ValidationError{
			Field:   "registers",
			Message: fmt.Sprintf("register map %s has no registers", m.Arch),
		}
	}

	seen := make(map[int]string, len(m.Registers))
	for i, e := range m.Registers {
		field := fmt.Sprintf("registers[%d]", i)
		switch {
		case e.State == "":
			return &stuberrors.ValidationError{Field: field + ".state", Message: "state symbol is required"}
		case e.Name == "":
			return &stuberrors.ValidationError{Field: field + ".name", Message: "register name is required"}
		case e.Number < 0 || e.Number > MaxRegisterNumber:
			return &stuberrors.ValidationError{
				Field:   field + ".number",
				Message: fmt.Sprintf("register number %d outside 0..%d", e.Number, MaxRegisterNumber),
			}
		case e.Type != "" && !e.Type.Valid():
			return &stuberrors.ValidationError{
				Field:      field + ".type",
				Message:    fmt.Sprintf("unknown register type %q", e.Type),
				Suggestion: "Use one of int, code_ptr, data_ptr, i387_ext, i386_eflags",
			}
		}
		if prev, dup := seen[e.Number]; dup {
			return &stuberrors.ValidationError{
				Field:   field + ".number",
				Message: fmt.Sprintf("register number %d used by both %s and %s", e.Number, prev, e.Name),
			}
		}
		seen[e.Number] = e.Name
	}
	return nil
}

func checkSchema(schema string) error {
	if schema == "" {
		return &stuberrors.ValidationError{
			Field:      "schema",
			Message:    "schema version is required",
			Suggestion: "Add schema: \"1.0\" to the map file",
		}
	}
	v, err := semver.NewVersion(schema)
	if err != nil {
		return &stuberrors.ValidationError{Field: "schema", Message: fmt.Sprintf("invalid schema version %q: %v", schema, err)}
	}
	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return &stuberrors.ValidationError{
			Field:   "schema",
			Message: fmt.Sprintf("schema %s does not satisfy %s", v, SchemaConstraint),
		}
	}
	return nil
}

// Set is an immutable collection of register maps keyed by architecture.
type Set struct {
	maps map[string]*Map
}

// NewSet builds a Set. Later maps replace earlier ones for the same architecture.
func NewSet(maps ...*Map) *Set {
	s := &Set{maps: make(map[string]*Map, len(maps))}
	for _, m := range maps {
		s.maps[strings.ToLower(m.Arch)] = m
	}
	return s
}

// With returns a new Set holding s's maps overlaid with maps.
func (s *Set) With(maps ...*Map) *Set {
	all := make([]*Map, 0, len(s.maps)+len(maps))
	for _, name := range s.Names() {
		all = append(all, s.maps[name])
	}
	return NewSet(append(all, maps...)...)
}

// Lookup returns the map for arch.
func (s *Set) Lookup(arch string) (*Map, error) {
	if s != nil {
		if m, ok := s.maps[strings.ToLower(arch)]; ok {
			return m, nil
		}
	}
	return nil, &stuberrors.NotFoundError{Resource: "register map", ID: arch}
}

// Names returns the architectures in the set, sorted.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.maps))
	for name := range s.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of maps.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.maps)
}
