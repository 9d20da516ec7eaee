// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package library combines the model store and the download coordinator
// into the flows a user drives: importing local files, adding custom
// models, removing models and listing what is ready.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/modelshelf/services/catalog"
	"github.com/AleutianAI/modelshelf/services/downloader"
	"github.com/AleutianAI/modelshelf/services/modelstore"
)

var (
	// ErrNotModelFile is returned when an imported model is not a .gguf file.
	ErrNotModelFile = errors.New("library: please select a .gguf file")

	// ErrNotProjectorFile is returned when an imported projector is not a .gguf file.
	ErrNotProjectorFile = errors.New("library: please select a .gguf projector file")

	// ErrProjectorIsPrimary is returned when an imported projector has the
	// same filename as the model weights it would overwrite.
	ErrProjectorIsPrimary = errors.New("library: projector filename matches the model file")

	// ErrNotDownloadable is returned when a download is requested for a
	// model that has no remote URL.
	ErrNotDownloadable = errors.New("library: model has no download URL")
)

// View is what a listing shows for one model.
type View struct {
	Model     catalog.Descriptor `json:"model"`
	BuiltIn   bool               `json:"built_in"`
	Selected  bool               `json:"selected"`
	Readiness catalog.Readiness  `json:"readiness"`
	Download  downloader.State   `json:"download"`
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Library is the user-facing model management facade.
type Library struct {
	store       *modelstore.Store
	coordinator *downloader.Coordinator
	logger      *slog.Logger
}

// New creates a Library over store and coordinator.
func New(store *modelstore.Store, coordinator *downloader.Coordinator, opts ...Option) *Library {
	l := &Library{
		store:       store,
		coordinator: coordinator,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying model store.
func (l *Library) Store() *modelstore.Store { return l.store }

// Coordinator returns the underlying download coordinator.
func (l *Library) Coordinator() *downloader.Coordinator { return l.coordinator }

// =============================================================================
// Listing
// =============================================================================

// Views returns one View per model matching query, in catalog order. An
// empty query returns every model.
func (l *Library) Views(query string) []View {
	models := l.store.Filter(query)
	selected := l.store.SelectedID()
	layout := l.store.Layout()

	views := make([]View, 0, len(models))
	for _, d := range models {
		views = append(views, l.view(layout, d, selected))
	}
	return views
}

// View returns the View for id.
func (l *Library) View(id string) (View, error) {
	d, err := l.model(id)
	if err != nil {
		return View{}, err
	}
	return l.view(l.store.Layout(), d, l.store.SelectedID()), nil
}

func (l *Library) view(layout catalog.Layout, d catalog.Descriptor, selected string) View {
	return View{
		Model:     d,
		BuiltIn:   catalog.IsBuiltIn(d.ID),
		Selected:  d.ID == selected,
		Readiness: layout.Readiness(d),
		Download:  l.coordinator.State(d.ID),
	}
}

// =============================================================================
// Downloads
// =============================================================================

// Download fetches the artifacts of id and blocks until done.
func (l *Library) Download(ctx context.Context, id string) error {
	d, err := l.downloadable(id)
	if err != nil {
		return err
	}
	return l.coordinator.Download(ctx, d)
}

// StartDownload begins downloading id in the background.
func (l *Library) StartDownload(id string) (downloader.State, error) {
	d, err := l.downloadable(id)
	if err != nil {
		return downloader.State{}, err
	}
	l.coordinator.Start(d)
	return l.coordinator.State(id), nil
}

// DeleteFiles removes the local artifacts of id, keeping its descriptor.
func (l *Library) DeleteFiles(ctx context.Context, id string) error {
	d, err := l.model(id)
	if err != nil {
		return err
	}
	return l.coordinator.DeleteLocalFiles(ctx, d)
}

func (l *Library) downloadable(id string) (catalog.Descriptor, error) {
	d, err := l.model(id)
	if err != nil {
		return catalog.Descriptor{}, err
	}
	if !d.IsDownloadable() {
		return catalog.Descriptor{}, fmt.Errorf("%w: %s", ErrNotDownloadable, id)
	}
	return d, nil
}

func (l *Library) model(id string) (catalog.Descriptor, error) {
	d, ok := l.store.Model(id)
	if !ok {
		return catalog.Descriptor{}, fmt.Errorf("%w: %s", modelstore.ErrModelNotFound, id)
	}
	return d, nil
}

// =============================================================================
// Mutations
// =============================================================================

// SaveCustom builds a custom descriptor from in and stores it.
//
// When in.ExistingID names a stored model the descriptor is replaced,
// otherwise it is added.
func (l *Library) SaveCustom(ctx context.Context, in catalog.CustomInput) (catalog.Descriptor, error) {
	d, err := catalog.NewCustomDescriptor(in)
	if err != nil {
		return catalog.Descriptor{}, err
	}
	if _, exists := l.store.Model(d.ID); exists {
		if err := l.store.Update(ctx, d); err != nil {
			return catalog.Descriptor{}, err
		}
	} else if err := l.store.Add(ctx, d); err != nil {
		return catalog.Descriptor{}, err
	}
	stored, _ := l.store.Model(d.ID)
	return stored, nil
}

// ImportLocalModel copies a .gguf file into a new local-<uuid> model.
//
// # Description
//
// The descriptor has no primary URL, so it is never downloaded. If adding
// the descriptor fails the copied file is removed again.
//
// # Outputs
//
//   - catalog.Descriptor: The stored descriptor.
//   - error: ErrNotModelFile, a filesystem error, or a store error.
func (l *Library) ImportLocalModel(ctx context.Context, sourcePath string) (catalog.Descriptor, error) {
	d, err := catalog.NewLocalDescriptor(sourcePath)
	if err != nil {
		if errors.Is(err, catalog.ErrNotGGUF) {
			return catalog.Descriptor{}, ErrNotModelFile
		}
		return catalog.Descriptor{}, err
	}

	layout := l.store.Layout()
	dir := layout.ModelDir(d.ID)
	if err := copyInto(ctx, sourcePath, dir, d.PrimaryFilename); err != nil {
		_ = os.RemoveAll(dir)
		return catalog.Descriptor{}, err
	}
	if err := l.store.Add(ctx, d); err != nil {
		_ = os.RemoveAll(dir)
		return catalog.Descriptor{}, err
	}
	l.store.Refresh()

	l.logger.Info("model imported", "model_id", d.ID, "source", sourcePath)
	return d, nil
}

// ImportProjector copies a .gguf projector next to the model id and
// records its filename on the descriptor.
func (l *Library) ImportProjector(ctx context.Context, id, sourcePath string) (catalog.Descriptor, error) {
	d, err := l.model(id)
	if err != nil {
		return catalog.Descriptor{}, err
	}
	filename := filepath.Base(sourcePath)
	if !strings.Contains(strings.ToLower(filepath.Ext(filename)), "gguf") {
		return catalog.Descriptor{}, ErrNotProjectorFile
	}
	if strings.EqualFold(filename, d.PrimaryFilename) {
		return catalog.Descriptor{}, ErrProjectorIsPrimary
	}

	if err := copyInto(ctx, sourcePath, l.store.Layout().ModelDir(d.ID), filename); err != nil {
		return catalog.Descriptor{}, err
	}
	d.ProjectorFilename = filename
	if err := l.store.Update(ctx, d); err != nil {
		return catalog.Descriptor{}, err
	}
	l.store.Refresh()

	l.logger.Info("projector imported", "model_id", d.ID, "filename", filename)
	updated, _ := l.store.Model(d.ID)
	return updated, nil
}

// RemoveModel deletes the local files of id and, for custom models, the
// descriptor itself. Built-in descriptors are never removed.
//
// Returns true when the descriptor was removed.
func (l *Library) RemoveModel(ctx context.Context, id string) (bool, error) {
	d, err := l.model(id)
	if err != nil {
		return false, err
	}
	if err := l.coordinator.DeleteLocalFiles(ctx, d); err != nil {
		return false, err
	}
	if d.Source != catalog.SourceCustom || catalog.IsBuiltIn(d.ID) {
		return false, nil
	}
	if err := l.store.Remove(ctx, d.ID); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// Helpers
// =============================================================================

// copyInto copies src to dir/name through a temporary file so a partial
// copy never appears under the final name.
func copyInto(ctx context.Context, src, dir, name string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("import %s: not a regular file", src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dest := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".import-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmp, readerWithContext{ctx: ctx, r: in}); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename %s: %w", dest, err)
	}
	return nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
