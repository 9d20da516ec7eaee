// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package downloader

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/AleutianAI/modelshelf/services/fetch"
)

// User-facing failure messages.
const (
	MsgMissingURL  = "Missing model URL."
	MsgNoArtifacts = "No download artifacts."
	MsgTooSmall    = "Downloaded file is unexpectedly small."
	MsgCanceled    = "Download canceled."
)

var (
	// ErrMissingURL indicates a descriptor without a primary URL.
	ErrMissingURL = errors.New("downloader: missing model URL")

	// ErrNoArtifacts indicates a descriptor that yields no artifacts.
	ErrNoArtifacts = errors.New("downloader: no download artifacts")

	// ErrArtifactTooSmall indicates a fetched file below the minimum size.
	ErrArtifactTooSmall = errors.New("downloader: artifact below minimum size")

	// ErrCanceled indicates the attempt was canceled or superseded.
	ErrCanceled = errors.New("downloader: download canceled")
)

// ErrorKind classifies download failures.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindIO            ErrorKind = "io"
	KindTransport     ErrorKind = "transport"
	KindIntegrity     ErrorKind = "integrity"
	KindCanceled      ErrorKind = "canceled"
)

// Error is a classified download failure.
//
// Error() returns Message, which is what gets stored in State.Error.
type Error struct {
	Kind     ErrorKind
	ModelID  string
	Artifact ArtifactKind
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps a fetch or filesystem error into an *Error.
func classify(modelID string, artifact ArtifactKind, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	e := &Error{ModelID: modelID, Artifact: artifact, Message: err.Error(), Err: err}

	var statusErr *fetch.StatusError
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindCanceled
		e.Message = MsgCanceled
		e.Err = errors.Join(ErrCanceled, err)
	case errors.As(err, &statusErr):
		e.Kind = KindTransport
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		e.Kind = KindIO
	default:
		e.Kind = KindTransport
	}
	return e
}
