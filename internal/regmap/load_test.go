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
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/gdbstub/internal/log"
	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

const z80Map = `schema: "1.0"
arch: z80
architecture: z80
feature: org.example.z80.core
registers:
  - {state: AF, name: af, number: 0}
  - {state: BC, name: bc, number: 1}
  - {state: SP, name: sp, number: 6, stop_report: true, type: data_ptr}
  - {state: PC, name: pc, number: 7, stop_report: true, type: code_ptr}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(z80Map), "z80.yaml")
	require.NoError(t, err)

	assert.Equal(t, "z80", m.Arch)
	assert.Equal(t, "z80.yaml", m.Source)
	require.Len(t, m.Registers, 4)
	assert.True(t, m.Registers[3].StopReport)
	assert.Equal(t, TypeCodePtr, m.Registers[3].Type)
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("registers: [:"), "bad.yaml")

	var cfgErr *stuberrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "bad.yaml", cfgErr.Key)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z80.yaml"), z80Map)
	writeFile(t, filepath.Join(dir, "vendor", "nested", "i486.yaml"), `schema: "1.2"
arch: i486
architecture: i386
feature: custom.i386
registers:
  - {state: EAX, name: eax, number: 0}
`)
	writeFile(t, filepath.Join(dir, "README.md"), "not a map")

	maps, err := LoadDir(dir, "")
	require.NoError(t, err)
	require.Len(t, maps, 2)

	set, err := Load(dir, "", log.Discard())
	require.NoError(t, err)

	z80, err := set.Lookup("Z80")
	require.NoError(t, err)
	assert.Equal(t, "org.example.z80.core", z80.Feature)

	// File maps replace built-in maps of the same architecture.
	i486, err := set.Lookup("i486")
	require.NoError(t, err)
	assert.Equal(t, "custom.i386", i486.Feature)

	_, err = set.Lookup("m68000")
	assert.NoError(t, err)
}

func TestLoadDir_MissingDir(t *testing.T) {
	maps, err := LoadDir(filepath.Join(t.TempDir(), "nope"), "")
	require.NoError(t, err)
	assert.Empty(t, maps)
}

func TestLoadDir_InvalidPattern(t *testing.T) {
	_, err := LoadDir(t.TempDir(), "[")
	var ve *stuberrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoadDir_InvalidMap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.yaml"), "schema: \"2.0\"\narch: x\nregisters:\n  - {state: A, name: a, number: 0}\n")

	_, err := LoadDir(dir, "")
	var ve *stuberrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "schema", ve.Field)
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z80.yaml"), z80Map)

	var latest atomic.Pointer[Set]
	w, err := NewWatcher(dir, "", func(s *Set) { latest.Store(s) }, log.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	defer func() { _ = w.Stop() }()

	writeFile(t, filepath.Join(dir, "toy.yaml"), `schema: "1.0"
arch: toy
registers:
  - {state: A, name: a, number: 0}
`)

	require.Eventually(t, func() bool {
		s := latest.Load()
		if s == nil {
			return false
		}
		_, err := s.Lookup("toy")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_ReloadFailureKeepsMaps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z80.yaml"), z80Map)

	var reloads, failures atomic.Int32
	w, err := NewWatcher(dir, "", func(*Set) { reloads.Add(1) }, log.Discard())
	require.NoError(t, err)
	w.OnError(func(error) { failures.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	defer func() { _ = w.Stop() }()

	writeFile(t, filepath.Join(dir, "broken.yaml"), "schema: [\n")

	require.Eventually(t, func() bool {
		return failures.Load() > 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, reloads.Load())
}
