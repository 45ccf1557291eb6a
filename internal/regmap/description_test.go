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

package regmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/gdbstub/internal/log"
	"github.com/tombee/gdbstub/internal/target"
)

func TestDescription_Gaps(t *testing.T) {
	m := &Map{
		Schema:       "1.0",
		Arch:         "toy",
		Architecture: "toy16",
		Feature:      "org.example.toy.core",
		Registers: []Entry{
			{State: "A", Name: "a", Number: 0},
			{State: "B", Name: "b", Number: 1, Type: TypeDataPtr},
			{State: "PC", Name: "pc", Number: 5, Type: TypeCodePtr},
			{State: "F", Name: "flags", Number: 6},
		},
	}
	state := []target.StateEntry{
		{Symbol: "A", Index: 0, Size: 2},
		{Symbol: "B", Index: 1, Size: 2},
		{Symbol: "PC", Index: 2, Size: 4},
		{Symbol: "F", Index: 3, Size: 1},
	}

	c := Build(m, state, false, log.Discard())

	want := `<?xml version="1.0"?>
<!DOCTYPE target SYSTEM "gdb-target.dtd">
<target version="1.0">
<architecture>toy16</architecture>
  <feature name="org.example.toy.core">
    <reg name="a" bitsize="16" type="int"/>
    <reg name="b" bitsize="16" type="data_ptr"/>
    <reg name="pc" bitsize="32" regnum="5" type="code_ptr"/>
    <reg name="flags" bitsize="8" type="int"/>
  </feature>
</target>
`
	assert.Equal(t, want, c.Description())
	assert.Equal(t, c.Description(), c.Description())
}

func TestDescription_I486(t *testing.T) {
	m, err := Builtin().Lookup("i486")
	require.NoError(t, err)

	doc := Build(m, i486State(), false, log.Discard()).Description()

	assert.Contains(t, doc, "<architecture>i386</architecture>")
	assert.Contains(t, doc, `<feature name="org.gnu.gdb.i386.core">`)
	assert.Contains(t, doc, `<reg name="eip" bitsize="32" type="code_ptr"/>`)
	assert.Contains(t, doc, `<reg name="st0" bitsize="64" type="i387_ext"/>`)
	assert.NotContains(t, doc, "regnum=")
	assert.Equal(t, 32, strings.Count(doc, "<reg "))
}

func TestDescription_Escapes(t *testing.T) {
	m := &Map{Schema: "1.0", Arch: "a<b", Feature: `f"x`, Registers: []Entry{{State: "R", Name: "r&1", Number: 0}}}
	doc := Build(m, []target.StateEntry{{Symbol: "R", Size: 4}}, false, log.Discard()).Description()

	assert.Contains(t, doc, "<architecture>a&lt;b</architecture>")
	assert.Contains(t, doc, `name="f&#34;x"`)
	assert.Contains(t, doc, `name="r&amp;1"`)
}
