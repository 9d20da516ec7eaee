// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

const testMin = 32

func place(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func visionDescriptor() catalog.Descriptor {
	return catalog.Descriptor{
		ID:                "vlm",
		DisplayName:       "VLM",
		Kind:              catalog.KindVision,
		PrimaryFilename:   "vlm.gguf",
		ProjectorFilename: "mmproj.gguf",
		SupportsVision:    true,
		Template:          catalog.TemplateGemma,
	}
}

func TestPrepareLoad_MissingPrimary(t *testing.T) {
	layout := catalog.NewLayout(t.TempDir())
	_, err := PrepareLoad(layout, visionDescriptor(), testMin)
	assert.ErrorIs(t, err, ErrModelFileNotFound)
}

func TestPrepareLoad_PrimaryTooSmall(t *testing.T) {
	layout := catalog.NewLayout(t.TempDir())
	d := visionDescriptor()
	place(t, layout.PrimaryPath(d), testMin-1)

	_, err := PrepareLoad(layout, d, testMin)
	assert.ErrorIs(t, err, ErrModelFileNotFound)
}

func TestPrepareLoad_TextOnly(t *testing.T) {
	layout := catalog.NewLayout(t.TempDir())
	d := visionDescriptor()
	place(t, layout.PrimaryPath(d), testMin)

	req, err := PrepareLoad(layout, d, testMin)
	require.NoError(t, err)
	assert.Equal(t, layout.PrimaryPath(d), req.PrimaryPath)
	assert.Empty(t, req.ProjectorPath)
	assert.Equal(t, catalog.DefaultContextSize, req.ContextSize)
	assert.Equal(t, catalog.TemplateGemma, req.Template)
	assert.ErrorIs(t, req.RequireVision(d), ErrMissingProjector)
}

func TestPrepareLoad_WithProjector(t *testing.T) {
	layout := catalog.NewLayout(t.TempDir())
	d := visionDescriptor()
	d.DefaultContext = 2048
	place(t, layout.PrimaryPath(d), testMin)
	projector, _ := layout.ProjectorPath(d)
	place(t, projector, testMin)

	req, err := PrepareLoad(layout, d, testMin)
	require.NoError(t, err)
	assert.Equal(t, projector, req.ProjectorPath)
	assert.Equal(t, 2048, req.ContextSize)
	assert.NoError(t, req.RequireVision(d))

	d.SupportsVision = false
	assert.ErrorIs(t, req.RequireVision(d), ErrVisionUnsupported)
}

func TestLlamaServer_Generate(t *testing.T) {
	var got completionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/completion":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(completionResponse{Content: "  hello there \n"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	eng, err := NewLlamaServer(srv.URL+"/", nil)
	require.NoError(t, err)

	session, err := eng.Load(context.Background(), LoadRequest{ModelID: "m", Template: catalog.TemplateChatML})
	require.NoError(t, err)
	defer session.Close()

	maxTokens := 16
	params := DefaultParams()
	params.MaxTokens = &maxTokens
	params.Stop = []string{"###"}

	out, err := session.Generate(context.Background(), Prompt{System: "be brief", User: "hi"}, params)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	assert.Equal(t, catalog.TemplateChatML.Format("be brief", "hi"), got.Prompt)
	assert.Equal(t, 16, got.NPredict)
	assert.Equal(t, []string{"<|im_end|>", "###"}, got.Stop)
	require.NotNil(t, got.TopK)
	assert.Equal(t, 40, *got.TopK)
}

func TestLlamaServer_LoadFailsWhenUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	eng, err := NewLlamaServer(srv.URL, nil)
	require.NoError(t, err)
	_, err = eng.Load(context.Background(), LoadRequest{})
	assert.Error(t, err)
}

func TestNewLlamaServer_RequiresURL(t *testing.T) {
	_, err := NewLlamaServer("  ", nil)
	assert.Error(t, err)
}
