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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/catalog"
)

func TestWatcher_ReloadsOnExternalCatalogWrite(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	w, err := NewWatcher(s, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	models := append(catalog.BuiltIns(), textDesc("custom-watch"))
	require.NoError(t, writeCatalog(filepath.Join(dir, CatalogFileName), models))

	assert.Eventually(t, func() bool {
		_, ok := s.Model("custom-watch")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_RefreshesOnModelFileChange(t *testing.T) {
	dir := t.TempDir()
	rec := &events.Recorder{}
	s := openStore(t, dir, WithPublisher(rec))

	w, err := NewWatcher(s, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	modelDir := s.Layout().ModelDir(catalog.TinyLlamaID)
	require.NoError(t, os.MkdirAll(modelDir, 0o755))

	assert.Eventually(t, func() bool {
		return rec.Count(events.TypeCatalogRefreshed) > 0
	}, 5*time.Second, 20*time.Millisecond)
}
