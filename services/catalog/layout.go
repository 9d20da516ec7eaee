// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"os"
	"path/filepath"
)

// MinArtifactBytes is the smallest file accepted as a real model artifact.
// Anything smaller is almost certainly an error page or a truncated transfer.
const MinArtifactBytes int64 = 1_000_000

// Layout maps descriptors onto the filesystem as <Root>/<id>/<filename>.
//
// Every method inspects the disk on each call.
type Layout struct {
	// Root is the models directory.
	Root string
}

// NewLayout returns a Layout rooted at <dataDir>/models.
func NewLayout(dataDir string) Layout {
	return Layout{Root: filepath.Join(dataDir, "models")}
}

// ModelDir returns the directory holding a model's artifacts.
func (l Layout) ModelDir(id string) string {
	return filepath.Join(l.Root, id)
}

// PrimaryPath returns the destination of the primary artifact.
func (l Layout) PrimaryPath(d Descriptor) string {
	return filepath.Join(l.ModelDir(d.ID), d.PrimaryFilename)
}

// ProjectorPath returns the projector destination, or false when the
// descriptor names no projector file.
func (l Layout) ProjectorPath(d Descriptor) (string, bool) {
	if d.ProjectorFilename == "" {
		return "", false
	}
	return filepath.Join(l.ModelDir(d.ID), d.ProjectorFilename), true
}

// IsDownloaded reports whether the primary artifact exists.
func (l Layout) IsDownloaded(d Descriptor) bool {
	return isRegularFile(l.PrimaryPath(d))
}

// IsVisionReady reports whether a vision model has both artifacts on disk.
func (l Layout) IsVisionReady(d Descriptor) bool {
	if !d.SupportsVision {
		return false
	}
	projector, ok := l.ProjectorPath(d)
	if !ok {
		return false
	}
	return l.IsDownloaded(d) && isRegularFile(projector)
}

// Readiness summarizes what is on disk for one descriptor.
type Readiness struct {
	Downloaded  bool  `json:"downloaded"`
	VisionReady bool  `json:"vision_ready"`
	DiskBytes   int64 `json:"disk_bytes"`
}

// Readiness returns the current on-disk status of d.
func (l Layout) Readiness(d Descriptor) Readiness {
	return Readiness{
		Downloaded:  l.IsDownloaded(d),
		VisionReady: l.IsVisionReady(d),
		DiskBytes:   l.DiskUsage(d),
	}
}

// DiskUsage sums the sizes of the regular files in the model directory.
func (l Layout) DiskUsage(d Descriptor) int64 {
	var total int64
	_ = filepath.WalkDir(l.ModelDir(d.ID), func(_ string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.Type().IsRegular() {
			if info, err := entry.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// FileAtLeast reports whether path is a regular file of at least minBytes bytes.
func FileAtLeast(path string, minBytes int64) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() >= minBytes
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
