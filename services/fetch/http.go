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
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultUserAgent identifies ModelShelf to artifact hosts.
const DefaultUserAgent = "modelshelf/1.0"

// HTTPFetcher downloads http and https URLs.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	token     *Token
	interval  time.Duration
	logger    *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithToken sends a bearer token to in-scope hosts.
func WithToken(t *Token) HTTPOption {
	return func(f *HTTPFetcher) {
		f.token = t
	}
}

// WithProgressInterval sets the minimum time between progress callbacks.
func WithProgressInterval(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
//
// The default client has no overall timeout, since model files can take
// many minutes. It bounds only the wait for response headers.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 60 * time.Second

	f := &HTTPFetcher{
		client:    &http.Client{Transport: transport},
		userAgent: DefaultUserAgent,
		interval:  DefaultProgressInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
//
// # Description
//
// Issues a GET and streams the body to destination. Non-2xx responses
// return *StatusError without touching the filesystem. Content-Length, when
// present, sets Progress.Total and is enforced on completion.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if err := f.token.authorize(req); err != nil {
		return fmt.Errorf("opening token: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("GET %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
	}

	start := time.Now()
	n, err := place(ctx, resp.Body, destination, resp.ContentLength, f.interval, onProgress)
	if err != nil {
		return err
	}

	f.logger.Debug("artifact fetched",
		"url", req.URL.Redacted(),
		"destination", destination,
		"bytes", n,
		"duration", time.Since(start),
	)
	return nil
}
