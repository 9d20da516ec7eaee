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
	"log/slog"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSFetcher downloads gs://bucket/object URLs from Google Cloud Storage.
type GCSFetcher struct {
	client   *storage.Client
	interval time.Duration
	logger   *slog.Logger
}

// GCSConfig configures NewGCSFetcher.
type GCSConfig struct {
	// CredentialsFile is a service account key. Empty uses Application
	// Default Credentials.
	CredentialsFile string

	// ProgressInterval throttles progress callbacks.
	ProgressInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// ClientOptions are appended to the storage client options.
	ClientOptions []option.ClientOption
}

// NewGCSFetcher creates a storage client and wraps it.
func NewGCSFetcher(ctx context.Context, cfg GCSConfig) (*GCSFetcher, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.ClientOptions...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSFetcher{client: client, interval: cfg.ProgressInterval, logger: logger}, nil
}

// Fetch implements Fetcher.
func (g *GCSFetcher) Fetch(ctx context.Context, rawURL, destination string, onProgress ProgressFunc) error {
	bucket, object, err := parseGCSURL(rawURL)
	if err != nil {
		return err
	}

	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, storage.ErrObjectNotExist) {
			return &StatusError{StatusCode: 404, URL: rawURL}
		}
		return fmt.Errorf("opening %s: %w", rawURL, err)
	}
	defer reader.Close()

	n, err := place(ctx, reader, destination, reader.Attrs.Size, g.interval, onProgress)
	if err != nil {
		return err
	}
	g.logger.Debug("artifact fetched", "url", rawURL, "destination", destination, "bytes", n)
	return nil
}

// Close closes the storage client.
func (g *GCSFetcher) Close() error {
	return g.client.Close()
}

// parseGCSURL splits gs://bucket/path/to/object.
func parseGCSURL(rawURL string) (bucket, object string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("%w: %s needs a bucket and object", ErrInvalidURL, rawURL)
	}
	return u.Host, object, nil
}
