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
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/catalog"
	"github.com/AleutianAI/modelshelf/services/fetch"
)

const testMinBytes = 16

// =============================================================================
// Test Helpers
// =============================================================================

type countingRefresher struct {
	n atomic.Int32
}

func (r *countingRefresher) Refresh() { r.n.Add(1) }

// writeFetcher writes size bytes to every destination, reporting progress
// in four steps.
func writeFetcher(size int) fetch.FetcherFunc {
	return func(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
		total := int64(size)
		for i := int64(1); i <= 4; i++ {
			if onProgress != nil {
				onProgress(fetch.Progress{Written: total * i / 4, Total: total})
			}
		}
		return os.WriteFile(destination, make([]byte, size), 0o644)
	}
}

// gatedFetcher signals entered on each call and blocks until release is
// closed or ctx ends.
type gatedFetcher struct {
	entered chan string
	release chan struct{}
	size    int
	calls   atomic.Int32
}

func newGatedFetcher(size int) *gatedFetcher {
	return &gatedFetcher{
		entered: make(chan string, 16),
		release: make(chan struct{}),
		size:    size,
	}
}

func (g *gatedFetcher) Fetch(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
	g.calls.Add(1)
	if err := os.WriteFile(destination+fetch.PartSuffix, []byte("partial"), 0o644); err != nil {
		return err
	}
	g.entered <- destination
	select {
	case <-ctx.Done():
		_ = os.Remove(destination + fetch.PartSuffix)
		return ctx.Err()
	case <-g.release:
	}
	_ = os.Remove(destination + fetch.PartSuffix)
	return os.WriteFile(destination, make([]byte, g.size), 0o644)
}

func textModel(id string) catalog.Descriptor {
	return catalog.Descriptor{
		ID:              id,
		DisplayName:     id,
		Kind:            catalog.KindText,
		PrimaryURL:      "https://example.com/" + id + ".gguf",
		PrimaryFilename: id + ".gguf",
	}
}

func visionModel(id string) catalog.Descriptor {
	d := textModel(id)
	d.Kind = catalog.KindVision
	d.SupportsVision = true
	d.ProjectorURL = "https://example.com/" + id + "-mmproj.gguf"
	d.ProjectorFilename = id + "-mmproj.gguf"
	return d
}

func newTestCoordinator(t *testing.T, f fetch.Fetcher) (*Coordinator, *events.Recorder, *countingRefresher) {
	t.Helper()
	rec := &events.Recorder{}
	ref := &countingRefresher{}
	c := New(f, catalog.NewLayout(t.TempDir()),
		WithPublisher(rec),
		WithRefresher(ref),
		WithMinArtifactBytes(testMinBytes),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c, rec, ref
}

func waitEntered(t *testing.T, g *gatedFetcher) string {
	t.Helper()
	select {
	case dest := <-g.entered:
		return dest
	case <-time.After(5 * time.Second):
		t.Fatal("fetch was not started")
		return ""
	}
}

// heldPublisher records events and holds the first event of type hold
// until release is closed.
type heldPublisher struct {
	events.Recorder
	hold    events.Type
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func newHeldPublisher(hold events.Type) *heldPublisher {
	return &heldPublisher{hold: hold, held: make(chan struct{}), release: make(chan struct{})}
}

func (p *heldPublisher) Publish(eventType events.Type, modelID string, data any) {
	if eventType == p.hold {
		first := false
		p.once.Do(func() { first = true })
		if first {
			close(p.held)
			<-p.release
		}
	}
	p.Recorder.Publish(eventType, modelID, data)
}

// unwindFetcher blocks its first call until ctx ends and then until unwind
// is closed. Later calls write size bytes.
type unwindFetcher struct {
	entered chan struct{}
	unwind  chan struct{}
	size    int
	calls   atomic.Int32
}

func newUnwindFetcher(size int) *unwindFetcher {
	return &unwindFetcher{entered: make(chan struct{}, 1), unwind: make(chan struct{}), size: size}
}

func (u *unwindFetcher) Fetch(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
	if u.calls.Add(1) == 1 {
		u.entered <- struct{}{}
		<-ctx.Done()
		<-u.unwind
		return ctx.Err()
	}
	return os.WriteFile(destination, make([]byte, u.size), 0o644)
}

func (u *unwindFetcher) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-u.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch was not started")
	}
}

// waitQuiet waits for every attempt to finish on its own, then for the
// background goroutines. Shutdown alone would cancel what is still running.
func waitQuiet(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.Active()) == 0 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Shutdown(context.Background()))
}

func progressValues(rec *events.Recorder, id string) []float64 {
	var out []float64
	for _, ev := range rec.Events() {
		if ev.ModelID != id {
			continue
		}
		if st, ok := ev.Data.(State); ok {
			out = append(out, st.Progress)
		}
	}
	return out
}

// =============================================================================
// PlanArtifacts
// =============================================================================

func TestPlanArtifacts(t *testing.T) {
	layout := catalog.NewLayout(t.TempDir())

	t.Run("text model has only a primary", func(t *testing.T) {
		artifacts, err := PlanArtifacts(layout, textModel("a"))
		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		assert.Equal(t, ArtifactPrimary, artifacts[0].Kind)
		assert.Equal(t, filepath.Join(layout.ModelDir("a"), "a.gguf"), artifacts[0].Destination)
	})

	t.Run("vision model with projector has two", func(t *testing.T) {
		artifacts, err := PlanArtifacts(layout, visionModel("v"))
		require.NoError(t, err)
		require.Len(t, artifacts, 2)
		assert.Equal(t, ArtifactPrimary, artifacts[0].Kind)
		assert.Equal(t, ArtifactProjector, artifacts[1].Kind)
	})

	t.Run("vision flag without projector url", func(t *testing.T) {
		d := visionModel("v")
		d.ProjectorURL = ""
		artifacts, err := PlanArtifacts(layout, d)
		require.NoError(t, err)
		assert.Len(t, artifacts, 1)
	})

	t.Run("projector without vision flag", func(t *testing.T) {
		d := visionModel("v")
		d.SupportsVision = false
		artifacts, err := PlanArtifacts(layout, d)
		require.NoError(t, err)
		assert.Len(t, artifacts, 1)
	})

	t.Run("missing url", func(t *testing.T) {
		d := textModel("a")
		d.PrimaryURL = "  "
		_, err := PlanArtifacts(layout, d)
		var derr *Error
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, KindConfiguration, derr.Kind)
		assert.Equal(t, MsgMissingURL, derr.Error())
		assert.ErrorIs(t, err, ErrMissingURL)
	})

	t.Run("no primary filename", func(t *testing.T) {
		d := textModel("a")
		d.PrimaryFilename = "../escape.gguf"
		_, err := PlanArtifacts(layout, d)
		require.ErrorIs(t, err, ErrNoArtifacts)
		assert.Equal(t, MsgNoArtifacts, err.Error())
	})
}

// =============================================================================
// Download
// =============================================================================

func TestDownload_VisionModelSucceeds(t *testing.T) {
	c, rec, ref := newTestCoordinator(t, writeFetcher(64))
	d := visionModel("vis")

	require.NoError(t, c.Download(context.Background(), d))

	st := c.State(d.ID)
	assert.Equal(t, PhaseCompleted, st.Phase)
	assert.False(t, st.IsDownloading)
	assert.Equal(t, 1.0, st.Progress)
	assert.Empty(t, st.Error)
	assert.EqualValues(t, 128, st.DownloadedBytes)

	assert.True(t, c.layout.IsVisionReady(d))
	assert.Equal(t, int32(1), ref.n.Load())

	types := rec.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.TypeDownloadStarted, types[0])
	assert.Equal(t, events.TypeDownloadCompleted, types[len(types)-1])

	values := progressValues(rec, d.ID)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress must not decrease")
	}
	assert.Contains(t, values, 0.5, "primary finished at half of overall progress")
}

func TestDownload_ProgressIsMonotonic(t *testing.T) {
	f := fetch.FetcherFunc(func(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
		onProgress(fetch.Progress{Written: 60, Total: 100})
		onProgress(fetch.Progress{Written: 20, Total: 100})
		onProgress(fetch.Progress{Written: 100, Total: 100})
		return os.WriteFile(destination, make([]byte, 100), 0o644)
	})
	c, rec, _ := newTestCoordinator(t, f)

	require.NoError(t, c.Download(context.Background(), textModel("m")))

	values := progressValues(rec, "m")
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
	}
}

func TestDownload_NewAttemptStartsAtZero(t *testing.T) {
	c, rec, _ := newTestCoordinator(t, writeFetcher(64))
	d := textModel("again")

	require.NoError(t, c.Download(context.Background(), d))
	require.NoError(t, c.Download(context.Background(), d))

	var starts []State
	for _, ev := range rec.Events() {
		if ev.Type == events.TypeDownloadStarted {
			starts = append(starts, ev.Data.(State))
		}
	}
	require.Len(t, starts, 2)
	assert.Zero(t, starts[1].Progress)
	assert.Greater(t, starts[1].Attempt, starts[0].Attempt)
}

func TestDownload_MissingURLPerformsNoIO(t *testing.T) {
	var calls atomic.Int32
	f := fetch.FetcherFunc(func(context.Context, string, string, fetch.ProgressFunc) error {
		calls.Add(1)
		return nil
	})
	c, rec, _ := newTestCoordinator(t, f)
	d := textModel("nourl")
	d.PrimaryURL = ""

	err := c.Download(context.Background(), d)
	require.ErrorIs(t, err, ErrMissingURL)

	st := c.State(d.ID)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, MsgMissingURL, st.Error)
	assert.Zero(t, st.Progress)
	assert.Zero(t, calls.Load())
	assert.NoDirExists(t, c.layout.ModelDir(d.ID))
	assert.Equal(t, 1, rec.Count(events.TypeDownloadFailed))
}

func TestDownload_TooSmallIsRejected(t *testing.T) {
	c, rec, ref := newTestCoordinator(t, writeFetcher(4))
	d := textModel("tiny")

	err := c.Download(context.Background(), d)
	require.ErrorIs(t, err, ErrArtifactTooSmall)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindIntegrity, derr.Kind)

	st := c.State(d.ID)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, MsgTooSmall, st.Error)
	assert.Zero(t, st.Progress)
	assert.NoFileExists(t, c.layout.PrimaryPath(d))
	assert.Zero(t, ref.n.Load())
	assert.Equal(t, 1, rec.Count(events.TypeDownloadFailed))
}

func TestDownload_ProjectorFailureRemovesPrimary(t *testing.T) {
	f := fetch.FetcherFunc(func(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
		if filepath.Base(destination) == "vis-mmproj.gguf" {
			return &fetch.StatusError{StatusCode: 404, URL: rawURL}
		}
		return os.WriteFile(destination, make([]byte, 64), 0o644)
	})
	c, _, _ := newTestCoordinator(t, f)
	d := visionModel("vis")

	err := c.Download(context.Background(), d)
	require.Error(t, err)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindTransport, derr.Kind)
	assert.Equal(t, ArtifactProjector, derr.Artifact)
	assert.Equal(t, "Network error (HTTP 404).", c.State(d.ID).Error)
	assert.NoFileExists(t, c.layout.PrimaryPath(d))
	assert.False(t, c.layout.IsDownloaded(d))
}

func TestDownload_ParallelIDs(t *testing.T) {
	g := newGatedFetcher(64)
	c, _, _ := newTestCoordinator(t, g)

	c.Start(textModel("one"))
	c.Start(textModel("two"))

	waitEntered(t, g)
	waitEntered(t, g)
	assert.True(t, c.State("one").IsDownloading)
	assert.True(t, c.State("two").IsDownloading)
	assert.Len(t, c.Active(), 2)

	close(g.release)
	waitQuiet(t, c)

	assert.Equal(t, PhaseCompleted, c.State("one").Phase)
	assert.Equal(t, PhaseCompleted, c.State("two").Phase)
}

func TestDownload_SupersedesSameID(t *testing.T) {
	g := newGatedFetcher(64)
	c, rec, _ := newTestCoordinator(t, g)
	d := textModel("dup")

	c.Start(d)
	waitEntered(t, g)
	first := c.State(d.ID).Attempt

	var wg sync.WaitGroup
	var second error
	wg.Add(1)
	go func() {
		defer wg.Done()
		second = c.Download(context.Background(), d)
	}()

	waitEntered(t, g)
	close(g.release)
	wg.Wait()
	require.NoError(t, second)
	waitQuiet(t, c)

	st := c.State(d.ID)
	assert.Equal(t, PhaseCompleted, st.Phase)
	assert.Greater(t, st.Attempt, first)
	assert.FileExists(t, c.layout.PrimaryPath(d))
	assert.Zero(t, rec.Count(events.TypeDownloadFailed))
	assert.Zero(t, rec.Count(events.TypeDownloadCanceled))
	assert.Equal(t, 2, rec.Count(events.TypeDownloadStarted))
}

// =============================================================================
// Cancel
// =============================================================================

func TestCancel_PublishesImmediately(t *testing.T) {
	g := newGatedFetcher(64)
	c, rec, _ := newTestCoordinator(t, g)
	d := textModel("stop")

	c.Start(d)
	dest := waitEntered(t, g)

	assert.True(t, c.Cancel(d.ID))

	st := c.State(d.ID)
	assert.Equal(t, PhaseCanceled, st.Phase)
	assert.False(t, st.IsDownloading)
	assert.Zero(t, st.Progress)
	assert.Equal(t, MsgCanceled, st.Error)
	assert.Equal(t, 1, rec.Count(events.TypeDownloadCanceled))

	waitQuiet(t, c)

	assert.Equal(t, 1, rec.Count(events.TypeDownloadCanceled), "late updates are ignored")
	assert.Equal(t, PhaseCanceled, c.State(d.ID).Phase)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+fetch.PartSuffix)
}

func TestCancel_EventOrderMatchesState(t *testing.T) {
	f := fetch.FetcherFunc(func(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
		onProgress(fetch.Progress{Written: 8, Total: 64})
		<-ctx.Done()
		return ctx.Err()
	})
	pub := newHeldPublisher(events.TypeDownloadProgress)
	c := New(f, catalog.NewLayout(t.TempDir()),
		WithPublisher(pub),
		WithMinArtifactBytes(testMinBytes),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	)
	d := textModel("order")

	c.Start(d)
	select {
	case <-pub.held:
	case <-time.After(5 * time.Second):
		t.Fatal("progress was not published")
	}

	// The progress event is mid-delivery; Cancel must not wait for it.
	assert.True(t, c.Cancel(d.ID))
	assert.Equal(t, PhaseCanceled, c.State(d.ID).Phase)

	close(pub.release)
	waitQuiet(t, c)

	var last events.Event
	for _, ev := range pub.Events() {
		if ev.ModelID == d.ID {
			last = ev
		}
	}
	require.Equal(t, events.TypeDownloadCanceled, last.Type)
	st := last.Data.(State)
	assert.False(t, st.IsDownloading)
	assert.Zero(t, st.Progress)
	assert.Equal(t, c.State(d.ID), st)
	assert.Equal(t, []events.Type{
		events.TypeDownloadStarted,
		events.TypeDownloadProgress,
		events.TypeDownloadCanceled,
	}, pub.Types())
}

func TestCancel_WhileWaitingOnSuperseded(t *testing.T) {
	u := newUnwindFetcher(64)
	c, rec, _ := newTestCoordinator(t, u)
	d := textModel("waiting")

	c.Start(d)
	u.waitEntered(t)

	// The second attempt waits for the first to unwind.
	c.Start(d)
	second := c.State(d.ID).Attempt

	assert.True(t, c.Cancel(d.ID))
	st := c.State(d.ID)
	assert.Equal(t, PhaseCanceled, st.Phase)
	assert.Equal(t, second, st.Attempt)

	close(u.unwind)
	waitQuiet(t, c)

	assert.Equal(t, PhaseCanceled, c.State(d.ID).Phase)
	assert.Equal(t, int32(1), u.calls.Load(), "a canceled attempt never fetches")
	assert.Equal(t, 1, rec.Count(events.TypeDownloadCanceled))
	assert.Zero(t, rec.Count(events.TypeDownloadFailed))
	assert.NoFileExists(t, c.layout.PrimaryPath(d))
	assert.Empty(t, c.Active())
}

func TestCancel_NothingInFlight(t *testing.T) {
	c, rec, _ := newTestCoordinator(t, writeFetcher(64))
	assert.False(t, c.Cancel("missing"))
	assert.Empty(t, rec.Events())
	assert.Equal(t, PhaseIdle, c.State("missing").Phase)
}

func TestDownload_ParentContextCanceled(t *testing.T) {
	g := newGatedFetcher(64)
	c, rec, _ := newTestCoordinator(t, g)
	d := textModel("ctx")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Download(ctx, d) }()

	waitEntered(t, g)
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, ErrCanceled)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, PhaseCanceled, c.State(d.ID).Phase)
	assert.Equal(t, 1, rec.Count(events.TypeDownloadCanceled))
}

// =============================================================================
// DeleteLocalFiles
// =============================================================================

func TestDeleteLocalFiles(t *testing.T) {
	c, rec, ref := newTestCoordinator(t, writeFetcher(64))
	d := textModel("gone")
	require.NoError(t, c.Download(context.Background(), d))
	require.True(t, c.layout.IsDownloaded(d))

	require.NoError(t, c.DeleteLocalFiles(context.Background(), d))
	assert.NoDirExists(t, c.layout.ModelDir(d.ID))
	assert.Equal(t, PhaseIdle, c.State(d.ID).Phase)
	assert.Equal(t, 1, rec.Count(events.TypeFilesDeleted))
	assert.Equal(t, int32(2), ref.n.Load())

	require.NoError(t, c.DeleteLocalFiles(context.Background(), d), "second delete is harmless")
}

func TestDeleteLocalFiles_CancelsInFlight(t *testing.T) {
	g := newGatedFetcher(64)
	c, rec, _ := newTestCoordinator(t, g)
	d := textModel("busy")

	c.Start(d)
	waitEntered(t, g)

	require.NoError(t, c.DeleteLocalFiles(context.Background(), d))
	assert.NoDirExists(t, c.layout.ModelDir(d.ID))
	assert.Equal(t, PhaseIdle, c.State(d.ID).Phase)
	assert.Empty(t, c.Active())
	assert.Zero(t, rec.Count(events.TypeDownloadFailed))
}

// =============================================================================
// Metrics
// =============================================================================

func TestDownload_MissingURLKeepsAttemptInFlight(t *testing.T) {
	g := newGatedFetcher(64)
	c, rec, _ := newTestCoordinator(t, g)
	d := textModel("busy")

	c.Start(d)
	waitEntered(t, g)
	inFlight := c.State(d.ID).Attempt

	bad := d
	bad.PrimaryURL = ""
	err := c.Download(context.Background(), bad)
	require.ErrorIs(t, err, ErrMissingURL)

	st := c.State(d.ID)
	assert.True(t, st.IsDownloading)
	assert.Equal(t, inFlight, st.Attempt)
	assert.Zero(t, rec.Count(events.TypeDownloadFailed))

	close(g.release)
	waitQuiet(t, c)

	assert.Equal(t, PhaseCompleted, c.State(d.ID).Phase)
	assert.FileExists(t, c.layout.PrimaryPath(d))
	assert.Zero(t, rec.Count(events.TypeDownloadCanceled))
}

func TestDeleteLocalFiles_DownloadDuringDeleteWaits(t *testing.T) {
	u := newUnwindFetcher(64)
	c, _, _ := newTestCoordinator(t, u)
	d := textModel("racing")

	c.Start(d)
	u.waitEntered(t)

	deleted := make(chan error, 1)
	go func() { deleted <- c.DeleteLocalFiles(context.Background(), d) }()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		r := c.runs[d.ID]
		return r != nil && r.deleting
	}, 5*time.Second, 5*time.Millisecond)

	c.Start(d)
	assert.True(t, c.State(d.ID).IsDownloading)

	close(u.unwind)
	require.NoError(t, <-deleted)
	waitQuiet(t, c)

	assert.Equal(t, PhaseCompleted, c.State(d.ID).Phase)
	assert.FileExists(t, c.layout.PrimaryPath(d), "the removal finished before the new attempt wrote")
	assert.Equal(t, int32(2), u.calls.Load())
}

func TestDeleteLocalFiles_ResetsFailedToIdle(t *testing.T) {
	c, rec, _ := newTestCoordinator(t, writeFetcher(64))
	d := textModel("broken")
	d.PrimaryURL = ""

	require.ErrorIs(t, c.Download(context.Background(), d), ErrMissingURL)
	require.Equal(t, PhaseFailed, c.State(d.ID).Phase)

	require.NoError(t, c.DeleteLocalFiles(context.Background(), d))

	st := c.State(d.ID)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.Error)
	assert.NotContains(t, c.States(), d.ID)
	assert.NoDirExists(t, c.layout.ModelDir(d.ID))
	assert.Equal(t, 1, rec.Count(events.TypeFilesDeleted))
}

func TestMetrics_RecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(writeFetcher(64), catalog.NewLayout(t.TempDir()),
		WithMetrics(m),
		WithMinArtifactBytes(testMinBytes),
	)

	require.NoError(t, c.Download(context.Background(), textModel("ok")))
	bad := textModel("bad")
	bad.PrimaryURL = ""
	require.Error(t, c.Download(context.Background(), bad))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 64.0, testutil.ToFloat64(m.BytesTotal.WithLabelValues(string(ArtifactPrimary))))
	assert.Zero(t, testutil.ToFloat64(m.Active))
}
