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
	"encoding/xml"
	"fmt"
	"strings"
)

// Description returns the target description document (target.xml). It is
// generated on first use and cached for the life of the catalog.
func (c *Catalog) Description() string {
	c.descOnce.Do(func() {
		c.desc = c.buildDescription()
	})
	return c.desc
}

func (c *Catalog) buildDescription() string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n")
	b.WriteString("<!DOCTYPE target SYSTEM \"gdb-target.dtd\">\n")
	b.WriteString("<target version=\"1.0\">\n")
	fmt.Fprintf(&b, "<architecture>%s</architecture>\n", escape(c.arch))
	fmt.Fprintf(&b, "  <feature name=\"%s\">\n", escape(c.feature))

	// regnum is only written where numbering skips ahead.
	next := 0
	for _, d := range c.Mapped() {
		regnum := ""
		if d.Number != next {
			regnum = fmt.Sprintf(" regnum=\"%d\"", d.Number)
		}
		fmt.Fprintf(&b, "    <reg name=\"%s\" bitsize=\"%d\"%s type=\"%s\"/>\n",
			escape(d.Name), d.BitSize, regnum, escape(string(d.Type)))
		next = d.Number + 1
	}

	b.WriteString("  </feature>\n")
	b.WriteString("</target>\n")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
