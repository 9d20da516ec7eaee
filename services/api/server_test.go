// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/catalog"
	"github.com/AleutianAI/modelshelf/services/downloader"
	"github.com/AleutianAI/modelshelf/services/fetch"
	"github.com/AleutianAI/modelshelf/services/library"
	"github.com/AleutianAI/modelshelf/services/modelstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server  *Server
	library *library.Library
	emitter *events.Emitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	emitter := events.NewEmitter()
	store, err := modelstore.Open(context.Background(),
		modelstore.Config{DataDir: t.TempDir()},
		modelstore.WithPreferences(modelstore.NewMemoryPreferences()),
		modelstore.WithPublisher(emitter),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	f := fetch.FetcherFunc(func(ctx context.Context, rawURL, destination string, onProgress fetch.ProgressFunc) error {
		return os.WriteFile(destination, make([]byte, 256), 0o644)
	})
	coord := downloader.New(f, store.Layout(),
		downloader.WithRefresher(store),
		downloader.WithPublisher(emitter),
		downloader.WithMinArtifactBytes(128),
		downloader.WithMetrics(downloader.NewMetrics(reg)),
	)
	t.Cleanup(func() { _ = coord.Shutdown(context.Background()) })

	lib := library.New(store, coord)
	return &testEnv{
		server:  NewServer(Config{Library: lib, Emitter: emitter, Gatherer: reg}),
		library: lib,
		emitter: emitter,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Models []library.View `json:"models"`
	}](t, w)
	assert.Len(t, all.Models, len(catalog.BuiltIns()))

	w = env.do(t, http.MethodGet, "/v1/models?query=tinyllama", nil)
	filtered := decode[struct {
		Models []library.View `json:"models"`
	}](t, w)
	require.Len(t, filtered.Models, 1)
	assert.Equal(t, catalog.TinyLlamaID, filtered.Models[0].Model.ID)
}

func TestGetModel_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/v1/models/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomModelLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/models", catalog.CustomInput{
		Name:       "Mistral Tiny",
		PrimaryURL: "https://example.com/mistral-tiny.gguf",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[catalog.Descriptor](t, w)
	assert.True(t, strings.HasPrefix(created.ID, catalog.CustomIDPrefix))

	w = env.do(t, http.MethodPut, "/v1/models/"+created.ID, catalog.CustomInput{
		Name:       "Mistral Tiny v2",
		PrimaryURL: "https://example.com/mistral-tiny-v2.gguf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[catalog.Descriptor](t, w)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "mistral-tiny-v2.gguf", updated.PrimaryFilename)

	w = env.do(t, http.MethodDelete, "/v1/models/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":true}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/models/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateModel_Invalid(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/models", catalog.CustomInput{Name: "x", PrimaryURL: "ftp://example.com/x.gguf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/models", catalog.CustomInput{PrimaryURL: "https://example.com/x.gguf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/models", catalog.CustomInput{
		ExistingID: catalog.OLMoEID,
		Name:       "dup",
		PrimaryURL: "https://example.com/x.gguf",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateModel_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/v1/models/missing", catalog.CustomInput{Name: "x", PrimaryURL: "https://example.com/x.gguf"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadAndDeleteFiles(t *testing.T) {
	env := newTestEnv(t)
	id := catalog.TinyLlamaID

	w := env.do(t, http.MethodPost, "/v1/models/"+id+"/download", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		return env.library.Coordinator().State(id).Phase == downloader.PhaseCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodGet, "/v1/downloads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	downloads := decode[struct {
		Downloads map[string]downloader.State `json:"downloads"`
	}](t, w)
	assert.Equal(t, 1.0, downloads.Downloads[id].Progress)

	w = env.do(t, http.MethodGet, "/v1/models/"+id, nil)
	view := decode[library.View](t, w)
	assert.True(t, view.Readiness.Downloaded)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "modelshelf_download_attempts_total")

	w = env.do(t, http.MethodDelete, "/v1/models/"+id+"/files", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.library.Store().Layout().IsDownloaded(view.Model))

	w = env.do(t, http.MethodDelete, "/v1/models/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":false}`, w.Body.String())
}

func TestStartDownload_NotDownloadable(t *testing.T) {
	env := newTestEnv(t)
	src := t.TempDir() + "/local.gguf"
	require.NoError(t, os.WriteFile(src, []byte("weights"), 0o644))
	d, err := env.library.ImportLocalModel(context.Background(), src)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/models/"+d.ID+"/download", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancel_NothingInFlight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/models/"+catalog.OLMoEID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[struct {
		Canceled bool `json:"canceled"`
	}](t, w)
	assert.False(t, out.Canceled)
}

func TestSelection(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/v1/selection", SelectionRequest{ModelID: catalog.Gemma2BID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/selection", nil)
	assert.JSONEq(t, `{"model_id":"`+catalog.Gemma2BID+`"}`, w.Body.String())

	w = env.do(t, http.MethodPut, "/v1/selection", SelectionRequest{ModelID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPut, "/v1/selection", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events?types=model.added"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.emitter.SubscriptionCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	env.emitter.Publish(events.TypeModelRemoved, "ignored", nil)
	env.emitter.Publish(events.TypeModelAdded, "custom-x", map[string]string{"id": "custom-x"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.TypeModelAdded, ev.Type)
	assert.Equal(t, "custom-x", ev.ModelID)
}

func TestEventQueue_KeepsLifecycleEventsWhenFull(t *testing.T) {
	q := newEventQueue(2)

	assert.True(t, q.push(events.Event{Type: events.TypeDownloadProgress, ModelID: "m"}))
	assert.True(t, q.push(events.Event{Type: events.TypeDownloadProgress, ModelID: "m"}))
	assert.False(t, q.push(events.Event{Type: events.TypeDownloadProgress, ModelID: "m"}))
	assert.True(t, q.push(events.Event{Type: events.TypeDownloadCompleted, ModelID: "m"}))
	assert.True(t, q.push(events.Event{Type: events.TypeDownloadCanceled, ModelID: "n"}))

	select {
	case <-q.ready:
	default:
		t.Fatal("queue did not signal readiness")
	}

	var types []events.Type
	for _, ev := range q.drain() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.Type{
		events.TypeDownloadProgress,
		events.TypeDownloadProgress,
		events.TypeDownloadCompleted,
		events.TypeDownloadCanceled,
	}, types)
	assert.Empty(t, q.drain())
	assert.True(t, q.push(events.Event{Type: events.TypeDownloadProgress, ModelID: "m"}), "draining frees room")
}
