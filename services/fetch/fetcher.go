// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch retrieves a single remote artifact into a local file.
//
// # Overview
//
// A Fetcher streams one URL to one destination path. Data is written to
// "<destination>.part", fsynced and renamed into place only when the
// transfer completes, so a destination path never holds a partial file.
// Progress is reported through a callback, throttled to a fixed interval,
// with a final report once the file is in place.
//
// Fetchers carry no retry, resume or checksum logic. Cancellation is
// through the context passed to Fetch.
//
// Supported schemes:
//
//   - http, https: HTTPFetcher
//   - gs: GCSFetcher (Google Cloud Storage)
//   - file: FileFetcher
//
// Router picks the fetcher for a URL by scheme.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Progress reports bytes written so far for one artifact.
type Progress struct {
	// Written is the number of bytes written to disk.
	Written int64

	// Total is the expected size, or 0 when the source did not say.
	Total int64
}

// Fraction returns Written/Total clamped to [0, 1]. Unknown totals report 0.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Written) / float64(p.Total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Fetcher retrieves one URL into a destination file.
type Fetcher interface {
	// Fetch streams rawURL to destination. The destination is replaced only
	// on success. Implementations return ctx.Err() (possibly wrapped) when
	// canceled.
	Fetch(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error {
	return f(ctx, rawURL, destination, onProgress)
}

var (
	// ErrUnsupportedScheme indicates no fetcher is registered for a URL scheme.
	ErrUnsupportedScheme = errors.New("fetch: unsupported URL scheme")

	// ErrInvalidURL indicates a URL that cannot be parsed or lacks a path.
	ErrInvalidURL = errors.New("fetch: invalid URL")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Network error (HTTP %d).", e.StatusCode)
}

// =============================================================================
// Router
// =============================================================================

// Router dispatches to a Fetcher by URL scheme.
//
// # Thread Safety
//
// Register must complete before concurrent Fetch calls.
type Router struct {
	fetchers map[string]Fetcher
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{fetchers: make(map[string]Fetcher)}
}

// Register routes the given schemes to f.
func (r *Router) Register(f Fetcher, schemes ...string) *Router {
	for _, s := range schemes {
		r.fetchers[strings.ToLower(s)] = f
	}
	return r
}

// Supports reports whether rawURL's scheme has a fetcher.
func (r *Router) Supports(rawURL string) bool {
	_, err := r.lookup(rawURL)
	return err == nil
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error {
	f, err := r.lookup(rawURL)
	if err != nil {
		return err
	}
	return f.Fetch(ctx, rawURL, destination, onProgress)
}

func (r *Router) lookup(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return f, nil
}
