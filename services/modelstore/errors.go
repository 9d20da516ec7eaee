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
)

var (
	// ErrDataDirRequired indicates Open was called without a data directory.
	ErrDataDirRequired = errors.New("modelstore: data directory is required")

	// ErrModelNotFound indicates no descriptor has the requested id.
	ErrModelNotFound = errors.New("modelstore: model not found")

	// ErrDuplicateID indicates Add was called with an id already present.
	ErrDuplicateID = errors.New("modelstore: model id already exists")

	// ErrBuiltInProtected indicates an attempt to remove a built-in descriptor.
	ErrBuiltInProtected = errors.New("modelstore: built-in models cannot be removed")

	// ErrUntrustedVision indicates a vision descriptor whose id is not trusted.
	ErrUntrustedVision = errors.New("modelstore: vision model id is not trusted")

	// ErrLockHeld indicates the catalog lock could not be acquired in time.
	ErrLockHeld = errors.New("modelstore: catalog lock held by another process")

	// ErrUnsupportedSchema indicates a catalog file written by a newer major version.
	ErrUnsupportedSchema = errors.New("modelstore: unsupported catalog schema version")

	// ErrClosed indicates use of a Store after Close.
	ErrClosed = errors.New("modelstore: store is closed")
)

// PersistError records a failed read or write of store state.
type PersistError struct {
	// Op is the failed operation ("read", "write", "lock", "prefs").
	Op string

	// Path is the file or directory involved.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("modelstore %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}
