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

// i486 follows the i386 core feature layout. The x87 pointer registers have
// no state of their own and read EAX.
var i486 = &Map{
	Schema:       "1.0",
	Arch:         "i486",
	Architecture: "i386",
	Feature:      "org.gnu.gdb.i386.core",
	Source:       "builtin",
	Registers: []Entry{
		{State: "EAX", Name: "eax", Number: 0, Type: TypeInt},
		{State: "ECX", Name: "ecx", Number: 1, Type: TypeInt},
		{State: "EDX", Name: "edx", Number: 2, Type: TypeInt},
		{State: "EBX", Name: "ebx", Number: 3, Type: TypeInt},
		{State: "ESP", Name: "esp", Number: 4, StopReport: true, Type: TypeDataPtr},
		{State: "EBP", Name: "ebp", Number: 5, StopReport: true, Type: TypeDataPtr},
		{State: "ESI", Name: "esi", Number: 6, Type: TypeInt},
		{State: "EDI", Name: "edi", Number: 7, Type: TypeInt},
		{State: "EIP", Name: "eip", Number: 8, StopReport: true, Type: TypeCodePtr},
		{State: "EFLAGS", Name: "eflags", Number: 9, Type: TypeInt},
		{State: "CS", Name: "cs", Number: 10, Type: TypeInt},
		{State: "SS", Name: "ss", Number: 11, Type: TypeInt},
		{State: "DS", Name: "ds", Number: 12, Type: TypeInt},
		{State: "ES", Name: "es", Number: 13, Type: TypeInt},
		{State: "FS", Name: "fs", Number: 14, Type: TypeInt},
		{State: "GS", Name: "gs", Number: 15, Type: TypeInt},
		{State: "ST0", Name: "st0", Number: 16, Type: TypeI387Ext},
		{State: "ST1", Name: "st1", Number: 17, Type: TypeI387Ext},
		{State: "ST2", Name: "st2", Number: 18, Type: TypeI387Ext},
		{State: "ST3", Name: "st3", Number: 19, Type: TypeI387Ext},
		{State: "ST4", Name: "st4", Number: 20, Type: TypeI387Ext},
		{State: "ST5", Name: "st5", Number: 21, Type: TypeI387Ext},
		{State: "ST6", Name: "st6", Number: 22, Type: TypeI387Ext},
		{State: "ST7", Name: "st7", Number: 23, Type: TypeI387Ext},
		{State: "x87_CW", Name: "fctrl", Number: 24, Type: TypeInt},
		{State: "x87_SW", Name: "fstat", Number: 25, Type: TypeInt},
		{State: "x87_TAG", Name: "ftag", Number: 26, Type: TypeInt},
		{State: "EAX", Name: "fiseg", Number: 27, Type: TypeInt},
		{State: "EAX", Name: "fioff", Number: 28, Type: TypeInt},
		{State: "EAX", Name: "foseg", Number: 29, Type: TypeInt},
		{State: "EAX", Name: "fooff", Number: 30, Type: TypeInt},
		{State: "EAX", Name: "fop", Number: 31, Type: TypeInt},
	},
}

var m68000 = &Map{
	Schema:       "1.0",
	Arch:         "m68000",
	Architecture: "m68k",
	Feature:      "org.gnu.gdb.m68k.core",
	Source:       "builtin",
	Registers: []Entry{
		{State: "D0", Name: "d0", Number: 0, Type: TypeInt},
		{State: "D1", Name: "d1", Number: 1, Type: TypeInt},
		{State: "D2", Name: "d2", Number: 2, Type: TypeInt},
		{State: "D3", Name: "d3", Number: 3, Type: TypeInt},
		{State: "D4", Name: "d4", Number: 4, Type: TypeInt},
		{State: "D5", Name: "d5", Number: 5, Type: TypeInt},
		{State: "D6", Name: "d6", Number: 6, Type: TypeInt},
		{State: "D7", Name: "d7", Number: 7, Type: TypeInt},
		{State: "A0", Name: "a0", Number: 8, Type: TypeDataPtr},
		{State: "A1", Name: "a1", Number: 9, Type: TypeDataPtr},
		{State: "A2", Name: "a2", Number: 10, Type: TypeDataPtr},
		{State: "A3", Name: "a3", Number: 11, Type: TypeDataPtr},
		{State: "A4", Name: "a4", Number: 12, Type: TypeDataPtr},
		{State: "A5", Name: "a5", Number: 13, Type: TypeDataPtr},
		{State: "A6", Name: "fp", Number: 14, StopReport: true, Type: TypeDataPtr},
		{State: "SP", Name: "sp", Number: 15, StopReport: true, Type: TypeDataPtr},
		{State: "SR", Name: "ps", Number: 16, Type: TypeInt},
		{State: "PC", Name: "pc", Number: 17, StopReport: true, Type: TypeCodePtr},
	},
}

// Builtin returns a Set holding the maps compiled into the binary.
func Builtin() *Set {
	return NewSet(i486, m68000)
}
