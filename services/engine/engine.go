// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine is the boundary between the model shelf and an inference
// runtime. It decides whether a descriptor can be loaded and what the
// runtime needs to load it; the runtime itself lives elsewhere.
package engine

import (
	"context"
	"errors"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

var (
	// ErrModelFileNotFound is returned when the primary artifact is missing
	// or too small to be a model.
	ErrModelFileNotFound = errors.New("Model file not found. Please download it first.")

	// ErrMissingProjector is returned when vision is requested for a model
	// whose projector is not on disk.
	ErrMissingProjector = errors.New("Vision model requires a projector (mmproj) file.")

	// ErrVisionUnsupported is returned when vision is requested for a
	// text-only model.
	ErrVisionUnsupported = errors.New("Selected model does not support vision.")
)

// GenerationParams are sampling settings. Nil fields use runtime defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// DefaultParams returns the sampling defaults used for chat.
func DefaultParams() GenerationParams {
	temp := float32(0.8)
	topK := 40
	topP := float32(0.95)
	return GenerationParams{Temperature: &temp, TopK: &topK, TopP: &topP}
}

// Prompt is one chat turn.
type Prompt struct {
	System string `json:"system,omitempty"`
	User   string `json:"user"`
}

// LoadRequest is everything a runtime needs to load a model.
type LoadRequest struct {
	ModelID string `json:"model_id"`

	// PrimaryPath is the weights file.
	PrimaryPath string `json:"primary_path"`

	// ProjectorPath is set only for vision models whose projector is on disk.
	ProjectorPath string `json:"projector_path,omitempty"`

	ContextSize int              `json:"context_size"`
	Template    catalog.Template `json:"template"`
}

// RequireVision reports whether the request can serve image input.
func (r LoadRequest) RequireVision(d catalog.Descriptor) error {
	if !d.SupportsVision {
		return ErrVisionUnsupported
	}
	if r.ProjectorPath == "" {
		return ErrMissingProjector
	}
	return nil
}

// Engine loads models.
type Engine interface {
	Load(ctx context.Context, req LoadRequest) (Session, error)
}

// Session generates text from a loaded model.
type Session interface {
	Generate(ctx context.Context, prompt Prompt, params GenerationParams) (string, error)
	Close() error
}

// PrepareLoad builds the LoadRequest for d.
//
// The primary artifact must exist and be at least minBytes long. The
// projector is included only when the descriptor supports vision and the
// projector file passes the same check. A minBytes of zero or less uses
// catalog.MinArtifactBytes.
func PrepareLoad(layout catalog.Layout, d catalog.Descriptor, minBytes int64) (LoadRequest, error) {
	if minBytes <= 0 {
		minBytes = catalog.MinArtifactBytes
	}

	primary := layout.PrimaryPath(d)
	if d.PrimaryFilename == "" || !catalog.FileAtLeast(primary, minBytes) {
		return LoadRequest{}, ErrModelFileNotFound
	}

	req := LoadRequest{
		ModelID:     d.ID,
		PrimaryPath: primary,
		ContextSize: d.ContextSize(catalog.DefaultContextSize),
		Template:    d.Template,
	}
	if req.Template == "" {
		req.Template = catalog.TemplateChatML
	}
	if d.SupportsVision {
		if projector, ok := layout.ProjectorPath(d); ok && catalog.FileAtLeast(projector, minBytes) {
			req.ProjectorPath = projector
		}
	}
	return req, nil
}
