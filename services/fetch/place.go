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
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PartSuffix is appended to the destination while a transfer is running.
const PartSuffix = ".part"

// DefaultProgressInterval throttles progress callbacks.
const DefaultProgressInterval = 200 * time.Millisecond

// progressWriter counts bytes and forwards throttled progress.
type progressWriter struct {
	written    int64
	total      int64
	onProgress ProgressFunc
	limiter    *rate.Sometimes
}

func newProgressWriter(total int64, interval time.Duration, onProgress ProgressFunc) *progressWriter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &progressWriter{
		total:      total,
		onProgress: onProgress,
		limiter:    &rate.Sometimes{Interval: interval},
	}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.onProgress != nil {
		w.limiter.Do(func() {
			w.onProgress(Progress{Written: w.written, Total: w.total})
		})
	}
	return len(p), nil
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var copyBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 256*1024)
		return &b
	},
}

// place streams src into destination via a .part file.
//
// # Description
//
// Any existing .part file is truncated. On success the part file is
// fsynced and renamed over destination and a final progress report with
// Written == Total is sent. On failure the part file is removed and
// destination is left untouched.
//
// # Outputs
//
//   - int64: Bytes written.
//   - error: ctx.Err() when canceled, otherwise an I/O error.
func place(ctx context.Context, src io.Reader, destination string, total int64, interval time.Duration, onProgress ProgressFunc) (int64, error) {
	part := destination + PartSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", part, err)
	}

	success := false
	defer func() {
		if !success {
			f.Close()
			_ = os.Remove(part)
		}
	}()

	pw := newProgressWriter(total, interval, onProgress)
	bufp := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(bufp)

	n, err := io.CopyBuffer(io.MultiWriter(f, pw), &ctxReader{ctx: ctx, r: src}, *bufp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("writing %s: %w", part, err)
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}
	if total > 0 && n != total {
		return n, fmt.Errorf("writing %s: %w: got %d of %d bytes", part, io.ErrUnexpectedEOF, n, total)
	}

	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("syncing %s: %w", part, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("closing %s: %w", part, err)
	}
	if err := os.Rename(part, destination); err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("placing %s: %w", destination, err)
	}
	success = true

	if onProgress != nil {
		onProgress(Progress{Written: n, Total: n})
	}
	return n, nil
}
