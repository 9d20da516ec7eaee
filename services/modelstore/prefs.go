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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// selectedModelKey is the preference key holding the selected model id.
const selectedModelKey = "selected_model_id"

// Preferences stores small user settings separately from the catalog file.
type Preferences interface {
	// Get returns the value for key, or "" and false when unset.
	Get(key string) (string, bool, error)

	// Set stores value under key.
	Set(key, value string) error

	// Close releases resources.
	Close() error
}

// =============================================================================
// Memory Preferences
// =============================================================================

// MemoryPreferences keeps preferences in process memory.
type MemoryPreferences struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPreferences returns empty in-memory preferences.
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{values: make(map[string]string)}
}

func (m *MemoryPreferences) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryPreferences) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryPreferences) Close() error { return nil }

// =============================================================================
// Badger Preferences
// =============================================================================

// BadgerConfig configures the Badger preference database.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence. Used by tests.
	InMemory bool

	// SyncWrites makes every Set durable before returning.
	SyncWrites bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// BadgerPreferences stores preferences in a Badger key-value directory.
//
// # Thread Safety
//
// Safe for concurrent use. Badger serializes transactions internally.
type BadgerPreferences struct {
	db *badger.DB
}

// OpenBadgerPreferences opens or creates the preference database.
//
// # Description
//
// Badger holds an exclusive directory lock; a second process opening the
// same path gets an error. Callers usually fall back to MemoryPreferences
// in that case.
//
// # Outputs
//
//   - *BadgerPreferences: Open database. Call Close when done.
//   - error: PersistError with Op "prefs" on failure.
func OpenBadgerPreferences(cfg BadgerConfig) (*BadgerPreferences, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, &PersistError{Op: "prefs", Err: errors.New("path is required for persistent preferences")}
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, &PersistError{Op: "prefs", Path: cfg.Path, Err: err}
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &PersistError{Op: "prefs", Path: cfg.Path, Err: err}
	}
	return &BadgerPreferences{db: db}, nil
}

func (b *BadgerPreferences) Get(key string) (string, bool, error) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

func (b *BadgerPreferences) Set(key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (b *BadgerPreferences) Close() error {
	return b.db.Close()
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
