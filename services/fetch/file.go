// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"
)

// FileFetcher copies file:// URLs. It is used for mirrors on shared
// filesystems and in tests.
type FileFetcher struct {
	// Interval throttles progress callbacks.
	Interval time.Duration
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	src, err := os.Open(u.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &StatusError{StatusCode: 404, URL: rawURL}
		}
		return fmt.Errorf("opening %s: %w", u.Path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", u.Path, err)
	}

	_, err = place(ctx, src, destination, info.Size(), f.Interval, onProgress)
	return err
}

// NewDefaultRouter routes http, https and file URLs, plus gs when gcs is
// non-nil.
func NewDefaultRouter(httpFetcher *HTTPFetcher, gcs *GCSFetcher) *Router {
	r := NewRouter().
		Register(httpFetcher, "http", "https").
		Register(FileFetcher{}, "file")
	if gcs != nil {
		r.Register(gcs, "gs")
	}
	return r
}
