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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrLockTimeout is returned when file lock acquisition times out.
	ErrLockTimeout = errors.New("configuration locked by another process")

	// ErrExists is returned by Write when the file exists and overwrite is false.
	ErrExists = errors.New("config: file already exists")
)

const (
	// lockTimeout is the maximum duration to wait for lock acquisition.
	lockTimeout = 5 * time.Second
)

// File manages a config file with an advisory lock so that concurrent
// `config init` runs do not interleave writes.
type File struct {
	path     string
	lockFile *os.File
}

// NewFile returns a File for path. An empty path selects ConfigPath.
func NewFile(path string) (*File, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	return &File{path: path}, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Lock acquires an exclusive lock on the file.
// Returns ErrLockTimeout if the lock cannot be acquired within the timeout period.
func (f *File) Lock() error {
	lockPath := f.path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(lockTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			f.lockFile = lockFile
			return nil
		}

		if time.Now().After(deadline) {
			lockFile.Close()
			return ErrLockTimeout
		}

		<-ticker.C
	}
}

// Unlock releases the file lock.
func (f *File) Unlock() error {
	if f.lockFile == nil {
		return nil
	}

	if err := syscall.Flock(int(f.lockFile.Fd()), syscall.LOCK_UN); err != nil {
		f.lockFile.Close()
		f.lockFile = nil
		return fmt.Errorf("failed to unlock: %w", err)
	}

	if err := f.lockFile.Close(); err != nil {
		f.lockFile = nil
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	f.lockFile = nil
	return nil
}

// Save writes cfg to the file atomically.
// The file must be locked before calling this method.
func (f *File) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	// Write to temporary file in the same directory (for atomic rename)
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// WithLock executes a function while holding the file lock.
// The lock is automatically released when the function returns.
func (f *File) WithLock(fn func() error) error {
	if err := f.Lock(); err != nil {
		return err
	}
	defer f.Unlock()

	return fn()
}

// Write saves cfg to path with locking. It refuses to replace an existing
// file unless overwrite is set.
func Write(path string, cfg *Config, overwrite bool) (string, error) {
	f, err := NewFile(path)
	if err != nil {
		return "", err
	}

	err = f.WithLock(func() error {
		if !overwrite {
			if _, err := os.Stat(f.path); err == nil {
				return fmt.Errorf("%w: %s", ErrExists, f.path)
			}
		}
		return f.Save(cfg)
	})
	if err != nil {
		return "", err
	}
	return f.path, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	return data, nil
}
