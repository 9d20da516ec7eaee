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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

const (
	// CatalogFileName is the catalog file inside the data directory.
	CatalogFileName = "models.json"

	// SchemaVersion is written to every catalog file.
	SchemaVersion = "v1.0.0"
)

// catalogFile is the on-disk envelope.
type catalogFile struct {
	SchemaVersion string               `json:"schema_version"`
	Models        []catalog.Descriptor `json:"models"`
}

// readCatalog loads descriptors from path.
//
// A bare JSON array is accepted as an unversioned legacy file. A versioned
// file whose major version differs from SchemaVersion is rejected with
// ErrUnsupportedSchema. A missing file returns an error satisfying
// errors.Is(err, os.ErrNotExist).
func readCatalog(path string) ([]catalog.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistError{Op: "read", Path: path, Err: err}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var legacy []catalog.Descriptor
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, &PersistError{Op: "decode", Path: path, Err: err}
		}
		return legacy, nil
	}

	var file catalogFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, &PersistError{Op: "decode", Path: path, Err: err}
	}
	if !semver.IsValid(file.SchemaVersion) || semver.Major(file.SchemaVersion) != semver.Major(SchemaVersion) {
		return nil, &PersistError{
			Op:   "decode",
			Path: path,
			Err:  fmt.Errorf("%w: %q", ErrUnsupportedSchema, file.SchemaVersion),
		}
	}
	return file.Models, nil
}

// writeCatalog persists descriptors atomically.
func writeCatalog(path string, models []catalog.Descriptor) error {
	if models == nil {
		models = []catalog.Descriptor{}
	}
	data, err := json.MarshalIndent(catalogFile{SchemaVersion: SchemaVersion, Models: models}, "", "  ")
	if err != nil {
		return &PersistError{Op: "encode", Path: path, Err: err}
	}
	if err := atomicWriteFile(path, append(data, '\n'), 0o644); err != nil {
		return &PersistError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// atomicWriteFile writes content to a temp file in the same directory,
// fsyncs it and renames it over path.
func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// quarantine moves an unreadable catalog aside so defaults can be written
// without destroying the user's file.
func quarantine(path string) (string, error) {
	dest := path + ".corrupt"
	if err := os.Rename(path, dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return dest, nil
}
