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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	stuberrors "github.com/tombee/gdbstub/pkg/errors"
)

// DefaultPattern selects map files below the map directory.
const DefaultPattern = "**/*.yaml"

// Parse decodes and validates one map document.
func Parse(data []byte, source string) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &stuberrors.ConfigError{
			Key:    source,
			Reason: "cannot parse register map",
			Cause:  err,
		}
	}
	m.Source = source
	if err := m.Validate(); err != nil {
		return nil, stuberrors.Wrapf(err, "register map %s", source)
	}
	return &m, nil
}

// LoadFile reads a single map file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading register map: %w", err)
	}
	return Parse(data, path)
}

// LoadDir loads every file under dir matching pattern. A missing directory
// yields no maps. The first invalid file aborts the load.
func LoadDir(dir, pattern string) ([]*Map, error) {
	if dir == "" {
		return nil, nil
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, &stuberrors.ValidationError{
			Field:   "regmaps.pattern",
			Message: fmt.Sprintf("invalid glob %q", pattern),
		}
	}

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("register map dir: %w", err)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	maps := make([]*Map, 0, len(matches))
	for _, rel := range matches {
		m, err := LoadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// Load returns the built-in maps overlaid with the maps found under dir.
func Load(dir, pattern string, logger *slog.Logger) (*Set, error) {
	maps, err := LoadDir(dir, pattern)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		for _, m := range maps {
			logger.Info("loaded register map", "arch", m.Arch, "source", m.Source, "registers", len(m.Registers))
		}
	}
	return Builtin().With(maps...), nil
}

// matchFile reports whether path below dir is selected by pattern.
func matchFile(dir, pattern, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// subdirs lists dir and every directory below it.
func subdirs(dir string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}
