// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the write/rename bursts editors produce
// when saving a file.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
//
// # Description
//
// Watches the directory containing the config file (editors replace
// files by rename, which drops a watch on the file itself) and invokes
// the callback with freshly loaded settings after each change. A file
// that fails to parse or validate is reported and skipped; the
// previous settings stay in effect.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(Settings)
}

// NewWatcher creates a watcher for the given config file.
//
// # Inputs
//
//   - path: config file to watch; must be non-empty
//   - onReload: invoked with the new settings after a successful reload
//
// # Outputs
//
//   - *Watcher: ready-to-start watcher
//   - error: non-nil if the underlying watcher cannot be created
func NewWatcher(path string, onReload func(Settings)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     ExpandPath(path),
		watcher:  watcher,
		onReload: onReload,
	}, nil
}

// Start begins watching for config changes. Blocks until the context
// is cancelled. Should be run in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		slog.Warn("Failed to watch config directory",
			"dir", dir,
			"error", err)
		return
	}

	slog.Debug("Started watching config file",
		"path", w.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error",
				"error", err)

		case <-ctx.Done():
			slog.Debug("Config watcher stopping")
			return
		}
	}
}

// relevant filters directory events down to our file being written,
// created, or renamed into place.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// reload re-reads the config and hands it to the callback.
func (w *Watcher) reload() {
	settings, err := Load()
	if err != nil {
		slog.Warn("Config reload failed, keeping previous settings",
			"path", w.path,
			"error", err)
		return
	}

	slog.Info("Config reloaded",
		"path", w.path)

	if w.onReload != nil {
		w.onReload(settings)
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
