// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modelstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of filesystem events.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reacts to filesystem changes made outside the Store.
//
// # Description
//
// Changes to models.json trigger Store.Reload. Changes inside the models
// directory (files dropped in or deleted by hand) trigger Store.Refresh so
// readiness consumers re-check the disk. fsnotify is not recursive, so the
// watcher adds each model directory as it appears.
type Watcher struct {
	store    *Store
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before acting on events.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for store's data and models directories.
func NewWatcher(store *Store, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{
		store:    store,
		fs:       fw,
		debounce: DefaultDebounce,
		logger:   store.logger,
	}
	for _, opt := range opts {
		opt(w)
	}

	root := store.Layout().Root
	if err := os.MkdirAll(root, 0o755); err != nil {
		fw.Close()
		return nil, fmt.Errorf("creating models directory: %w", err)
	}
	for _, dir := range []string{filepath.Dir(store.Path()), root} {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if e.IsDir() {
			w.add(filepath.Join(root, e.Name()))
		}
	}
	return w, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var (
		timer       *time.Timer
		timerC      <-chan time.Time
		wantReload  bool
		wantRefresh bool
		catalogPath = filepath.Clean(w.store.Path())
		modelsRoot  = filepath.Clean(w.store.Layout().Root)
	)

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			switch {
			case name == catalogPath:
				wantReload = true
				arm()
			case filepath.Dir(name) == modelsRoot || filepath.Dir(filepath.Dir(name)) == modelsRoot:
				if event.Op&fsnotify.Create != 0 && filepath.Dir(name) == modelsRoot {
					if info, err := os.Stat(name); err == nil && info.IsDir() {
						w.add(name)
					}
				}
				wantRefresh = true
				arm()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			if wantReload {
				if err := w.store.Reload(ctx); err != nil && !errors.Is(err, ErrClosed) {
					w.logger.Warn("catalog reload failed", "error", err)
				}
			}
			if wantRefresh {
				w.store.Refresh()
			}
			wantReload, wantRefresh = false, false
		}
	}
}

func (w *Watcher) add(dir string) {
	if err := w.fs.Add(dir); err != nil {
		w.logger.Debug("failed to watch model directory", "path", dir, "error", err)
	}
}
