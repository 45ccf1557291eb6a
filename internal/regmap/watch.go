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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces bursts of editor writes into one reload.
const reloadDelay = 200 * time.Millisecond

// Watcher reloads register maps when files under the map directory change.
// Each successful reload is passed to the callback as a fresh Set; failed
// reloads are logged and the previous Set stays in effect.
type Watcher struct {
	dir      string
	pattern  string
	onReload func(*Set)
	onError  func(error)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher watches dir and its subdirectories.
func NewWatcher(dir, pattern string, onReload func(*Set), logger *slog.Logger) (*Watcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if logger == nil {
		logger = slog.Default()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dirs, err := subdirs(absDir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to list map directories: %w", err)
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}

	return &Watcher{
		dir:      absDir,
		pattern:  pattern,
		onReload: onReload,
		watcher:  fsw,
		logger:   logger.With(slog.String("component", "regmap-watcher"), slog.String("dir", absDir)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnError registers fn to be called when a reload fails. It must be called
// before Run.
func (w *Watcher) OnError(fn func(error)) {
	w.onError = fn
}

// Run processes filesystem events until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.doneCh)
	w.logger.Info("register map watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("register map watcher stopped (context cancelled)")
			return nil
		case <-w.stopCh:
			w.logger.Info("register map watcher stopped")
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("register map watcher error", "error", err)
		}
	}
}

// Stop ends Run and releases the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}

	// New subdirectories need their own watch.
	if event.Has(fsnotify.Create) {
		if dirs, err := subdirs(event.Name); err == nil {
			for _, d := range dirs {
				_ = w.watcher.Add(d)
			}
		}
	}

	if !matchFile(w.dir, w.pattern, event.Name) {
		return
	}
	w.logger.Debug("register map changed", "op", event.Op.String(), "path", event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, w.reload)
}

func (w *Watcher) reload() {
	set, err := Load(w.dir, w.pattern, nil)
	if err != nil {
		w.logger.Warn("register map reload failed, keeping previous maps", "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.logger.Info("register maps reloaded", "maps", set.Len())
	if w.onReload != nil {
		w.onReload(set)
	}
}
