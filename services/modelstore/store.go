// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package modelstore owns the ordered list of model descriptors and the
// selected model id.
//
// # Overview
//
// The catalog file (<data>/models.json) holds descriptors; the selection is
// kept in a separate Preferences store (<data>/prefs). On Open the file is
// read and reconciled against catalog.BuiltIns. A missing or unreadable
// file never fails Open: the defaults are used and written back.
//
// Every mutation is persisted before it becomes visible. If the write
// fails, the in-memory list is left unchanged and the error is returned.
//
// # Thread Safety
//
// Store is safe for concurrent use. Readers receive copies.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/catalog"
)

// DefaultLockTimeout bounds how long a write waits for the catalog lock.
const DefaultLockTimeout = 5 * time.Second

// Config configures a Store.
type Config struct {
	// DataDir holds models.json, prefs/ and models/. Required.
	DataDir string

	// TrustedVisionIDs extends the set of ids allowed to claim vision
	// beyond the built-in vision models.
	TrustedVisionIDs []string

	// LockTimeout bounds waits for the catalog file lock. Zero selects
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// Option configures optional Store dependencies.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublisher sets the event publisher. Defaults to events.Nop.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithPreferences supplies the preference store. The Store does not close
// preferences it did not open.
func WithPreferences(p Preferences) Option {
	return func(s *Store) {
		s.prefs = p
	}
}

// WithDefaults replaces catalog.BuiltIns() as the default set.
func WithDefaults(defaults []catalog.Descriptor) Option {
	return func(s *Store) {
		s.defaults = slices.Clone(defaults)
	}
}

// Store is the persisted, reconciled model catalog.
type Store struct {
	mu       sync.RWMutex
	models   []catalog.Descriptor
	selected string
	version  uint64
	closed   bool

	path      string
	lock      *fileLock
	lockWait  time.Duration
	layout    catalog.Layout
	defaults  []catalog.Descriptor
	builtIns  map[string]struct{}
	trusted   map[string]struct{}
	trustList []string
	prefs     Preferences
	ownsPrefs bool
	logger    *slog.Logger
	publisher events.Publisher
}

// Open loads the catalog from cfg.DataDir.
//
// # Description
//
// Reads models.json and reconciles it with the defaults. When the file is
// absent the defaults are written immediately. When it cannot be read or
// decoded, or carries an unsupported schema major version, it is moved to
// models.json.corrupt, a warning is logged and the defaults are written.
//
// Preferences default to a Badger directory at <data>/prefs. If it cannot
// be opened (typically because another process holds it) the store falls
// back to in-memory preferences and logs a warning.
//
// # Outputs
//
//   - *Store: Ready to use. Call Close when done.
//   - error: ErrDataDirRequired, or a failure to create the data directory.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, ErrDataDirRequired
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, &PersistError{Op: "mkdir", Path: cfg.DataDir, Err: err}
	}

	s := &Store{
		path:      filepath.Join(cfg.DataDir, CatalogFileName),
		lock:      newFileLock(filepath.Join(cfg.DataDir, CatalogFileName+".lock")),
		lockWait:  cfg.LockTimeout,
		layout:    catalog.NewLayout(cfg.DataDir),
		defaults:  catalog.BuiltIns(),
		logger:    slog.Default(),
		publisher: events.Nop{},
	}
	if s.lockWait <= 0 {
		s.lockWait = DefaultLockTimeout
	}
	for _, opt := range opts {
		opt(s)
	}

	s.builtIns = make(map[string]struct{}, len(s.defaults))
	s.trusted = make(map[string]struct{})
	for _, d := range s.defaults {
		s.builtIns[d.ID] = struct{}{}
		if d.ClaimsVision() {
			s.trusted[d.ID] = struct{}{}
		}
	}
	for _, id := range cfg.TrustedVisionIDs {
		s.trusted[id] = struct{}{}
	}
	s.trustList = slices.Clone(cfg.TrustedVisionIDs)

	if s.prefs == nil {
		prefsDir := filepath.Join(cfg.DataDir, "prefs")
		prefs, err := OpenBadgerPreferences(BadgerConfig{Path: prefsDir, SyncWrites: true})
		if err != nil {
			s.logger.Warn("preferences unavailable, selection will not persist",
				"path", prefsDir, "error", err)
			s.prefs = NewMemoryPreferences()
		} else {
			s.prefs = prefs
		}
		s.ownsPrefs = true
	}

	ctx, span := startStoreSpan(ctx, "Open", "")
	defer span.End()

	s.models = s.load(ctx)

	if id, ok, err := s.prefs.Get(selectedModelKey); err != nil {
		s.logger.Warn("failed to read selected model", "error", err)
	} else if ok {
		s.selected = id
	}

	s.logger.Info("model catalog loaded",
		"path", s.path,
		"models", len(s.models),
		"selected", s.selectedLocked(),
	)
	return s, nil
}

// load reads and reconciles the catalog file, falling back to defaults.
func (s *Store) load(ctx context.Context) []catalog.Descriptor {
	persisted, err := readCatalog(s.path)
	if err == nil {
		recordLoad(ctx, loadOK)
		return Reconcile(persisted, s.defaults, s.trustList)
	}

	models := slices.Clone(s.defaults)
	if errors.Is(err, os.ErrNotExist) {
		recordLoad(ctx, loadInitial)
		s.logger.Info("no catalog file, writing defaults", "path", s.path)
	} else {
		recordLoad(ctx, loadRecovered)
		s.logger.Warn("catalog unreadable, falling back to defaults",
			"path", s.path, "error", err)
		if moved, qerr := quarantine(s.path); qerr != nil {
			s.logger.Warn("failed to move unreadable catalog aside", "error", qerr)
		} else if moved != "" {
			s.logger.Warn("unreadable catalog preserved", "path", moved)
		}
	}

	if err := s.persist(ctx, models); err != nil {
		s.logger.Warn("failed to write default catalog", "path", s.path, "error", err)
	}
	return models
}

// persist writes models under the cross-process lock.
func (s *Store) persist(ctx context.Context, models []catalog.Descriptor) error {
	start := time.Now()
	if err := s.lock.acquire(s.lockWait); err != nil {
		recordSave(ctx, time.Since(start), false)
		return err
	}
	defer func() {
		if err := s.lock.release(); err != nil {
			s.logger.Warn("failed to release catalog lock", "error", err)
		}
	}()

	err := writeCatalog(s.path, models)
	recordSave(ctx, time.Since(start), err == nil)
	return err
}

// =============================================================================
// Reads
// =============================================================================

// Models returns a copy of the descriptors in catalog order.
func (s *Store) Models() []catalog.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.models)
}

// Model returns the descriptor with the given id.
func (s *Store) Model(id string) (catalog.Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.models[i], true
	}
	return catalog.Descriptor{}, false
}

// Filter returns descriptors whose display name contains query, ignoring
// case. An empty query returns everything.
func (s *Store) Filter(query string) []catalog.Descriptor {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	if query == "" {
		return slices.Clone(s.models)
	}
	var out []catalog.Descriptor
	for _, d := range s.models {
		if strings.Contains(strings.ToLower(d.DisplayName), query) {
			out = append(out, d)
		}
	}
	return out
}

// SelectedID returns the selected model id. When the stored selection is
// unset or no longer in the catalog, the first model is returned.
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedLocked()
}

// Selected returns the selected descriptor.
func (s *Store) Selected() (catalog.Descriptor, bool) {
	return s.Model(s.SelectedID())
}

// Version increases on every mutation and Refresh.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Layout returns the artifact layout rooted in the data directory.
func (s *Store) Layout() catalog.Layout {
	return s.layout
}

// Path returns the catalog file path.
func (s *Store) Path() string {
	return s.path
}

// IsVisionTrusted reports whether id may claim vision capability.
func (s *Store) IsVisionTrusted(id string) bool {
	_, ok := s.trusted[id]
	return ok
}

// =============================================================================
// Mutations
// =============================================================================

// Add appends a custom descriptor.
//
// # Outputs
//
//   - error: ErrDuplicateID if the id exists (built-in ids always exist),
//     ErrUntrustedVision if it claims vision with an untrusted id,
//     catalog.ErrInvalidDescriptor, or a persistence error.
func (s *Store) Add(ctx context.Context, d catalog.Descriptor) error {
	ctx, span := startStoreSpan(ctx, "Add", d.ID)
	defer span.End()

	d = d.Normalize()
	d.Source = catalog.SourceCustom
	if err := d.Validate(); err != nil {
		return err
	}
	if !visionTrusted(d, s.trusted) {
		return fmt.Errorf("%w: %s", ErrUntrustedVision, d.ID)
	}

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.indexLocked(d.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}
	next := append(slices.Clone(s.models), d)
	if err := s.commitLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	recordMutation(ctx, "add")
	s.logger.Info("model added", "model_id", d.ID)
	s.publisher.Publish(events.TypeModelAdded, d.ID, d)
	return nil
}

// Update replaces the descriptor with the same id. It is a no-op when the
// id is absent. The stored Source is preserved.
func (s *Store) Update(ctx context.Context, d catalog.Descriptor) error {
	ctx, span := startStoreSpan(ctx, "Update", d.ID)
	defer span.End()

	d = d.Normalize()

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(d.ID)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	d.Source = s.models[i].Source
	if err := d.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !visionTrusted(d, s.trusted) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUntrustedVision, d.ID)
	}
	next := slices.Clone(s.models)
	next[i] = d
	if err := s.commitLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	recordMutation(ctx, "update")
	s.logger.Info("model updated", "model_id", d.ID)
	s.publisher.Publish(events.TypeModelUpdated, d.ID, d)
	return nil
}

// Remove deletes a custom descriptor from the collection. Artifact files
// are not touched; pair this with the coordinator's DeleteLocalFiles.
// Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	ctx, span := startStoreSpan(ctx, "Remove", id)
	defer span.End()

	if _, builtIn := s.builtIns[id]; builtIn {
		return fmt.Errorf("%w: %s", ErrBuiltInProtected, id)
	}

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	next := slices.Delete(slices.Clone(s.models), i, i+1)
	if err := s.commitLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	recordMutation(ctx, "remove")
	s.logger.Info("model removed", "model_id", id)
	s.publisher.Publish(events.TypeModelRemoved, id, nil)
	return nil
}

// Select persists id as the selected model.
func (s *Store) Select(ctx context.Context, id string) error {
	_, span := startStoreSpan(ctx, "Select", id)
	defer span.End()

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if err := s.prefs.Set(selectedModelKey, id); err != nil {
		s.mu.Unlock()
		return &PersistError{Op: "prefs", Path: selectedModelKey, Err: err}
	}
	s.selected = id
	s.mu.Unlock()

	s.logger.Info("model selected", "model_id", id)
	s.publisher.Publish(events.TypeSelectionChanged, id, nil)
	return nil
}

// Refresh signals that on-disk readiness may have changed.
func (s *Store) Refresh() {
	s.mu.Lock()
	s.version++
	version := s.version
	s.mu.Unlock()

	recordRefresh(context.Background())
	s.publisher.Publish(events.TypeCatalogRefreshed, "", version)
}

// Reload re-reads the catalog file, for example after another process
// changed it. Unlike Open it keeps the current list when the file is
// unreadable.
func (s *Store) Reload(ctx context.Context) error {
	ctx, span := startStoreSpan(ctx, "Reload", "")
	defer span.End()

	persisted, err := readCatalog(s.path)
	if err != nil {
		return err
	}
	models := Reconcile(persisted, s.defaults, s.trustList)

	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := !slices.Equal(models, s.models)
	if changed {
		s.models = models
		s.version++
	}
	s.mu.Unlock()

	if changed {
		recordMutation(ctx, "reload")
		s.logger.Info("model catalog reloaded", "models", len(models))
		s.publisher.Publish(events.TypeCatalogRefreshed, "", s.Version())
	}
	return nil
}

// Close releases preferences opened by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownsPrefs {
		return s.prefs.Close()
	}
	return nil
}

// =============================================================================
// Internal
// =============================================================================

// commitLocked persists next and installs it. Caller holds s.mu.
func (s *Store) commitLocked(ctx context.Context, next []catalog.Descriptor) error {
	if err := s.persist(ctx, next); err != nil {
		s.logger.Error("failed to persist catalog", "path", s.path, "error", err)
		return err
	}
	s.models = next
	s.version++
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.models, func(d catalog.Descriptor) bool { return d.ID == id })
}

func (s *Store) selectedLocked() string {
	if s.selected != "" && s.indexLocked(s.selected) >= 0 {
		return s.selected
	}
	if len(s.models) > 0 {
		return s.models[0].ID
	}
	return ""
}

func (s *Store) checkOpenLocked() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}
