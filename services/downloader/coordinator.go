// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package downloader coordinates per-model artifact downloads.
//
// # Overview
//
// Coordinator runs one attempt per model id at a time. Attempts for
// different ids run in parallel; the artifacts of one attempt download
// sequentially, primary first. State is observable by pull (State, States)
// and by push (events published through an events.Publisher).
//
// # State machine
//
//	idle -> downloading -> completed | failed | canceled
//
// A new Download for an id that is already downloading supersedes the
// running attempt: the old one is canceled, its files are cleaned up, and
// the new attempt starts from progress 0 once the old one has unwound.
// Updates from a superseded attempt are discarded by attempt number.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Events are queued under the same
// lock as the state change they carry and published one at a time in that
// order, so the last event seen for an id always matches State. Publishers
// must not block indefinitely.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/catalog"
	"github.com/AleutianAI/modelshelf/services/fetch"
)

var tracer = otel.Tracer("modelshelf.downloader")

// Refresher is notified when on-disk readiness may have changed.
type Refresher interface {
	Refresh()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithRefresher sets the readiness refresher, normally the model store.
func WithRefresher(r Refresher) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.refresher = r
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMinArtifactBytes overrides catalog.MinArtifactBytes.
func WithMinArtifactBytes(n int64) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.minBytes = n
		}
	}
}

type nopRefresher struct{}

func (nopRefresher) Refresh() {}

// run is one in-flight attempt.
type run struct {
	id        string
	attempt   uint64
	desc      catalog.Descriptor
	artifacts []Artifact
	planErr   *Error
	prev      *run

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	start  time.Time
	done   chan struct{}

	// canceled is set by Cancel, which records the canceled state itself.
	canceled bool

	// superseded is set when a newer attempt or a delete took over the id.
	superseded bool

	// deleting marks the placeholder DeleteLocalFiles holds while it
	// removes files. A Download arriving meanwhile waits on it.
	deleting bool
}

// outgoing is an event queued under mu and delivered by flush.
type outgoing struct {
	typ   events.Type
	id    string
	state State
}

// Coordinator downloads model artifacts and tracks per-model state.
type Coordinator struct {
	fetcher   fetch.Fetcher
	layout    catalog.Layout
	refresher Refresher
	publisher events.Publisher
	metrics   *Metrics
	logger    *slog.Logger
	minBytes  int64

	mu       sync.Mutex
	states   map[string]State
	runs     map[string]*run
	attempts uint64
	outbox   []outgoing
	draining bool
	bg       sync.WaitGroup
}

// New creates a Coordinator that fetches with fetcher into layout.
func New(fetcher fetch.Fetcher, layout catalog.Layout, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:   fetcher,
		layout:    layout,
		refresher: nopRefresher{},
		publisher: events.Nop{},
		logger:    slog.Default(),
		minBytes:  catalog.MinArtifactBytes,
		states:    make(map[string]State),
		runs:      make(map[string]*run),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// =============================================================================
// Public API
// =============================================================================

// Download fetches every artifact of d and blocks until the attempt ends.
//
// # Description
//
//  1. Compute the artifacts. An empty primary URL fails with "Missing model
//     URL." and no I/O.
//  2. Supersede any running attempt for d.ID and publish downloading at 0.
//  3. Wait for the superseded attempt to unwind, then create the model
//     directory.
//  4. For each artifact in order: remove the stale file, fetch it with
//     overall progress (k + f) / N, and reject it when it is smaller than
//     the minimum artifact size.
//  5. On success publish progress 1 and call Refresh. On failure remove
//     every artifact destination of the attempt and publish the error.
//
// # Outputs
//
//   - error: nil on success, otherwise *Error. A canceled or superseded
//     attempt returns an *Error wrapping ErrCanceled.
func (c *Coordinator) Download(ctx context.Context, d catalog.Descriptor) error {
	r := c.prepare(ctx, d)
	return c.execute(r)
}

// Start begins a download in the background and returns once the attempt
// is registered, so State reflects it immediately.
func (c *Coordinator) Start(d catalog.Descriptor) {
	r := c.prepare(context.Background(), d)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		_ = c.execute(r)
	}()
}

// Cancel stops the in-flight attempt for id.
//
// The canceled state (not downloading, progress 0, "Download canceled.")
// is recorded before Cancel returns and its event is queued behind any
// update already recorded for the attempt. Later updates from that attempt
// are ignored. Returns false when nothing was in flight.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	r := c.runs[id]
	if r == nil || r.deleting || r.canceled || r.superseded {
		c.mu.Unlock()
		return false
	}
	r.canceled = true
	r.cancel()

	st := c.states[id]
	st.Phase = PhaseCanceled
	st.IsDownloading = false
	st.Progress = 0
	st.Error = MsgCanceled
	st.ErrorKind = KindCanceled
	st.UpdatedAt = time.Now()
	c.states[id] = st
	c.emit(events.TypeDownloadCanceled, id, st)
	c.mu.Unlock()

	c.logger.Info("download canceled", "model_id", id, "attempt", r.attempt)
	c.flush()
	return true
}

// DeleteLocalFiles removes every file of d.
//
// # Description
//
// Cancels any in-flight attempt and waits for it to unwind, removes the
// model directory (a missing directory is fine), resets the state to idle
// and calls Refresh. Calling it twice is harmless.
//
// # Outputs
//
//   - error: ctx.Err() if ctx ends while waiting, or an *Error of KindIO.
func (c *Coordinator) DeleteLocalFiles(ctx context.Context, d catalog.Descriptor) error {
	ctx, span := tracer.Start(ctx, "Coordinator.DeleteLocalFiles",
		trace.WithAttributes(attribute.String("model.id", d.ID)))
	defer span.End()

	// The placeholder keeps a concurrent Download from writing into the
	// directory until the removal below is done.
	del := &run{id: d.ID, deleting: true, cancel: func() {}, done: make(chan struct{})}

	c.mu.Lock()
	prev := c.runs[d.ID]
	if prev != nil {
		prev.superseded = true
		prev.cancel()
	}
	c.runs[d.ID] = del
	c.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			go func() {
				<-prev.done
				c.release(del)
			}()
			return ctx.Err()
		}
	}

	dir := c.layout.ModelDir(d.ID)
	if err := os.RemoveAll(dir); err != nil {
		derr := &Error{Kind: KindIO, ModelID: d.ID, Message: err.Error(), Err: err}
		c.mu.Lock()
		if c.runs[d.ID] == del {
			st := c.states[d.ID]
			st.ModelID = d.ID
			st.Phase = PhaseFailed
			st.IsDownloading = false
			st.Progress = 0
			st.Error = derr.Message
			st.ErrorKind = KindIO
			st.UpdatedAt = time.Now()
			c.states[d.ID] = st
			c.emit(events.TypeDownloadFailed, d.ID, st)
		}
		c.mu.Unlock()
		c.release(del)

		span.RecordError(err)
		span.SetStatus(codes.Error, "remove failed")
		c.logger.Error("failed to delete model files", "model_id", d.ID, "path", dir, "error", err)
		c.flush()
		return derr
	}

	c.mu.Lock()
	st := idleState(d.ID)
	if c.runs[d.ID] == del {
		delete(c.states, d.ID)
	} else if cur, ok := c.states[d.ID]; ok {
		// A Download arrived during the removal and owns the state now.
		st = cur
	}
	c.emit(events.TypeFilesDeleted, d.ID, st)
	c.mu.Unlock()
	c.release(del)

	c.logger.Info("model files deleted", "model_id", d.ID, "path", dir)
	c.flush()
	c.refresher.Refresh()
	return nil
}

// State returns the state for id. Ids with no attempt report PhaseIdle.
func (c *Coordinator) State(id string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[id]; ok {
		return st
	}
	return idleState(id)
}

// States returns a copy of every recorded state.
func (c *Coordinator) States() map[string]State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]State, len(c.states))
	for id, st := range c.states {
		out[id] = st
	}
	return out
}

// Active returns the ids with an attempt in flight.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.runs))
	for id, r := range c.runs {
		if !r.deleting {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown cancels every in-flight attempt and waits for background
// downloads started with Start to return.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	for _, id := range c.Active() {
		c.Cancel(id)
	}
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Attempt lifecycle
// =============================================================================

// prepare plans the artifacts, supersedes any running attempt and records
// the initial state.
func (c *Coordinator) prepare(ctx context.Context, d catalog.Descriptor) *run {
	ctx, span := tracer.Start(ctx, "Coordinator.Download",
		trace.WithAttributes(attribute.String("model.id", d.ID)))
	runCtx, cancel := context.WithCancel(ctx)

	r := &run{
		id:     d.ID,
		desc:   d,
		ctx:    runCtx,
		cancel: cancel,
		span:   span,
		start:  time.Now(),
		done:   make(chan struct{}),
	}

	artifacts, err := PlanArtifacts(c.layout, d)
	if err != nil {
		var derr *Error
		errors.As(err, &derr)
		r.planErr = derr
	}
	r.artifacts = artifacts

	c.mu.Lock()
	c.attempts++
	r.attempt = c.attempts
	span.SetAttributes(attribute.Int64("download.attempt", int64(r.attempt)))

	if r.planErr != nil {
		// A request that cannot start leaves an attempt in flight alone.
		if busy := c.runs[d.ID]; busy != nil {
			c.mu.Unlock()
			c.logger.Warn("download rejected, keeping the attempt in flight",
				"model_id", d.ID, "in_flight", busy.attempt, "error", r.planErr.Message)
			return r
		}
		st := State{
			ModelID:   d.ID,
			Attempt:   r.attempt,
			Phase:     PhaseFailed,
			Error:     r.planErr.Message,
			ErrorKind: r.planErr.Kind,
			UpdatedAt: time.Now(),
		}
		c.states[d.ID] = st
		c.emit(events.TypeDownloadFailed, d.ID, st)
		c.mu.Unlock()

		c.logger.Warn("download rejected", "model_id", d.ID, "error", r.planErr.Message)
		c.flush()
		return r
	}

	if prev := c.runs[d.ID]; prev != nil {
		prev.superseded = true
		prev.cancel()
		r.prev = prev
	}
	c.runs[d.ID] = r
	st := State{
		ModelID:       d.ID,
		Attempt:       r.attempt,
		Phase:         PhaseDownloading,
		IsDownloading: true,
		UpdatedAt:     time.Now(),
	}
	c.states[d.ID] = st
	c.emit(events.TypeDownloadStarted, d.ID, st)
	c.mu.Unlock()

	switch {
	case r.prev != nil && r.prev.deleting:
		c.logger.Info("waiting for file deletion", "model_id", d.ID, "attempt", r.attempt)
	case r.prev != nil:
		c.logger.Info("superseding download", "model_id", d.ID, "attempt", r.attempt, "previous", r.prev.attempt)
	}
	c.logger.Info("download started", "model_id", d.ID, "attempt", r.attempt, "artifacts", len(artifacts))
	c.flush()
	return r
}

// execute runs a prepared attempt to completion.
func (c *Coordinator) execute(r *run) error {
	defer c.release(r)

	if r.planErr != nil {
		c.observe(r, "rejected")
		r.span.SetStatus(codes.Error, r.planErr.Message)
		return r.planErr
	}

	c.metrics.Active.Inc()
	defer c.metrics.Active.Dec()

	if r.prev != nil {
		<-r.prev.done
	}

	err := c.transfer(r)
	if err != nil {
		c.cleanup(r)
		derr := classify(r.id, "", err)
		c.fail(r, derr)
		return derr
	}

	c.observe(r, "completed")
	st, ok := c.apply(r, events.TypeDownloadCompleted, func(s *State) bool {
		s.Phase = PhaseCompleted
		s.IsDownloading = false
		s.Progress = 1
		s.Error = ""
		s.ErrorKind = KindNone
		return true
	})
	if !ok {
		return &Error{Kind: KindCanceled, ModelID: r.id, Message: MsgCanceled, Err: ErrCanceled}
	}

	c.logger.Info("download completed",
		"model_id", r.id,
		"attempt", r.attempt,
		"bytes", st.DownloadedBytes,
		"duration", time.Since(r.start),
	)
	c.flush()
	c.refresher.Refresh()
	return nil
}

// transfer creates the model directory and fetches each artifact in order.
func (c *Coordinator) transfer(r *run) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}

	dir := c.layout.ModelDir(r.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Kind: KindIO, ModelID: r.id, Message: err.Error(), Err: err}
	}

	n := float64(len(r.artifacts))
	var completed int64
	for k, a := range r.artifacts {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if err := removeIfExists(a.Destination); err != nil {
			return &Error{Kind: KindIO, ModelID: r.id, Artifact: a.Kind, Message: err.Error(), Err: err}
		}

		base := float64(k)
		kind := a.Kind
		done := completed
		onProgress := func(p fetch.Progress) {
			total := p.Total
			if total < p.Written {
				total = p.Written
			}
			c.progress(r, kind, (base+p.Fraction())/n, done+p.Written, done+total)
		}

		fetchCtx, span := tracer.Start(r.ctx, "Coordinator.fetchArtifact",
			trace.WithAttributes(
				attribute.String("model.id", r.id),
				attribute.String("artifact.kind", string(a.Kind)),
			))
		err := c.fetcher.Fetch(fetchCtx, a.URL, a.Destination, onProgress)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err != nil {
			return classify(r.id, a.Kind, err)
		}
		if err := r.ctx.Err(); err != nil {
			return err
		}

		info, err := os.Stat(a.Destination)
		if err != nil {
			return &Error{Kind: KindIO, ModelID: r.id, Artifact: a.Kind, Message: err.Error(), Err: err}
		}
		if info.Size() < c.minBytes {
			return &Error{
				Kind:     KindIntegrity,
				ModelID:  r.id,
				Artifact: a.Kind,
				Message:  MsgTooSmall,
				Err:      fmt.Errorf("%w: %s is %d bytes", ErrArtifactTooSmall, a.Destination, info.Size()),
			}
		}
		completed += info.Size()
		c.metrics.BytesTotal.WithLabelValues(string(a.Kind)).Add(float64(info.Size()))
	}
	return nil
}

// progress records a monotonic progress update for the current attempt.
func (c *Coordinator) progress(r *run, kind ArtifactKind, overall float64, written, total int64) {
	_, ok := c.apply(r, events.TypeDownloadProgress, func(s *State) bool {
		if s.Phase != PhaseDownloading {
			return false
		}
		if overall > s.Progress {
			s.Progress = overall
		}
		s.DownloadedBytes = written
		s.TotalBytes = total
		s.Artifact = kind
		return true
	})
	if ok {
		c.flush()
	}
}

// fail records a terminal error unless the attempt was canceled by Cancel
// or superseded.
func (c *Coordinator) fail(r *run, derr *Error) {
	phase := PhaseFailed
	eventType := events.TypeDownloadFailed
	outcome := "failed"
	if derr.Kind == KindCanceled {
		phase = PhaseCanceled
		eventType = events.TypeDownloadCanceled
		outcome = "canceled"
	}

	c.mu.Lock()
	superseded := r.superseded
	c.mu.Unlock()
	if superseded {
		outcome = "superseded"
	}
	c.observe(r, outcome)
	r.span.RecordError(derr)
	r.span.SetStatus(codes.Error, derr.Message)

	_, ok := c.apply(r, eventType, func(s *State) bool {
		s.Phase = phase
		s.IsDownloading = false
		s.Progress = 0
		s.Error = derr.Message
		s.ErrorKind = derr.Kind
		return true
	})
	if !ok {
		return
	}

	if derr.Kind == KindCanceled {
		c.logger.Info("download canceled", "model_id", r.id, "attempt", r.attempt)
	} else {
		c.logger.Error("download failed",
			"model_id", r.id,
			"attempt", r.attempt,
			"artifact", derr.Artifact,
			"kind", derr.Kind,
			"error", derr.Err,
		)
	}
	c.flush()
}

// cleanup removes every artifact destination of the attempt so nothing
// half-finished is reported as ready.
func (c *Coordinator) cleanup(r *run) {
	for _, a := range r.artifacts {
		for _, path := range []string{a.Destination, a.Destination + fetch.PartSuffix} {
			if err := removeIfExists(path); err != nil {
				c.logger.Warn("failed to remove artifact", "model_id", r.id, "path", path, "error", err)
			}
		}
	}
}

// apply mutates the state for r.id if r still owns it and queues typ with
// the result.
func (c *Coordinator) apply(r *run, typ events.Type, fn func(*State) bool) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[r.id]
	if !ok || st.Attempt != r.attempt || r.canceled || r.superseded {
		return State{}, false
	}
	if !fn(&st) {
		return State{}, false
	}
	st.UpdatedAt = time.Now()
	c.states[r.id] = st
	c.emit(typ, r.id, st)
	return st, true
}

// emit queues an event. The caller holds mu.
func (c *Coordinator) emit(typ events.Type, id string, st State) {
	c.outbox = append(c.outbox, outgoing{typ: typ, id: id, state: st})
}

// flush publishes queued events in the order they were recorded. One
// goroutine delivers at a time; a caller that finds delivery in progress
// returns and leaves its events to that goroutine.
func (c *Coordinator) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		ev := c.outbox[0]
		c.outbox[0] = outgoing{}
		c.outbox = c.outbox[1:]
		c.mu.Unlock()
		c.publisher.Publish(ev.typ, ev.id, ev.state)
		c.mu.Lock()
	}
	c.outbox = nil
	c.draining = false
	c.mu.Unlock()
}

// release unregisters r and signals waiters. Deletion placeholders carry
// no span.
func (c *Coordinator) release(r *run) {
	c.mu.Lock()
	if c.runs[r.id] == r {
		delete(c.runs, r.id)
	}
	c.mu.Unlock()
	r.cancel()
	if r.span != nil {
		r.span.End()
	}
	close(r.done)
}

func (c *Coordinator) observe(r *run, outcome string) {
	c.metrics.AttemptsTotal.WithLabelValues(outcome).Inc()
	c.metrics.DurationSeconds.WithLabelValues(outcome).Observe(time.Since(r.start).Seconds())
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
