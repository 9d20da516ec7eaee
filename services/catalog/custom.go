// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Id prefixes for user-supplied descriptors.
const (
	CustomIDPrefix = "custom-"
	LocalIDPrefix  = "local-"
)

// CustomInput is the user-facing form for adding or editing a custom model.
type CustomInput struct {
	// ExistingID keeps the id of the descriptor being edited. Empty adds a new one.
	ExistingID string `json:"existing_id,omitempty"`

	Name           string `json:"name"`
	PrimaryURL     string `json:"primary_url"`
	SupportsVision bool   `json:"supports_vision"`
	ProjectorURL   string `json:"projector_url,omitempty"`
	SupportsOCR    bool   `json:"supports_ocr"`

	// ContextSize of zero selects DefaultContextSize.
	ContextSize int `json:"context_size,omitempty"`
}

// NewCustomDescriptor builds a custom descriptor from user input.
//
// # Description
//
// The name is trimmed and required. The primary URL must be an absolute
// http(s) URL. The projector URL is considered only when vision is enabled
// and may be empty. Filenames come from the last path segment of each URL,
// ignoring query strings.
//
// # Outputs
//
//   - Descriptor: Source custom, template chatml, id custom-<uuid> unless
//     ExistingID is set.
//   - error: ErrNameRequired, ErrInvalidURL or ErrNoFilename.
func NewCustomDescriptor(in CustomInput) (Descriptor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Descriptor{}, ErrNameRequired
	}

	primaryURL := strings.TrimSpace(in.PrimaryURL)
	if err := checkHTTPURL(primaryURL); err != nil {
		return Descriptor{}, fmt.Errorf("primary: %w", err)
	}
	primaryFile, err := FilenameFromURL(primaryURL)
	if err != nil {
		return Descriptor{}, fmt.Errorf("primary: %w", err)
	}

	var projectorURL, projectorFile string
	if in.SupportsVision {
		projectorURL = strings.TrimSpace(in.ProjectorURL)
		if projectorURL != "" {
			if err := checkHTTPURL(projectorURL); err != nil {
				return Descriptor{}, fmt.Errorf("projector: %w", err)
			}
			if projectorFile, err = FilenameFromURL(projectorURL); err != nil {
				return Descriptor{}, fmt.Errorf("projector: %w", err)
			}
		}
	}

	id := strings.TrimSpace(in.ExistingID)
	if id == "" {
		id = CustomIDPrefix + uuid.NewString()
	}

	ctxSize := in.ContextSize
	if ctxSize <= 0 {
		ctxSize = DefaultContextSize
	}

	kind := KindText
	if in.SupportsVision {
		kind = KindVision
	}

	return Descriptor{
		ID:                id,
		DisplayName:       name,
		Kind:              kind,
		Source:            SourceCustom,
		PrimaryURL:        primaryURL,
		PrimaryFilename:   primaryFile,
		ProjectorURL:      projectorURL,
		ProjectorFilename: projectorFile,
		SupportsVision:    in.SupportsVision,
		SupportsOCR:       in.SupportsOCR,
		DefaultContext:    ctxSize,
		Template:          TemplateChatML,
	}, nil
}

// NewLocalDescriptor builds the descriptor for an imported .gguf file.
//
// The descriptor has no primary URL, so it is never a download target.
func NewLocalDescriptor(sourcePath string) (Descriptor, error) {
	filename := filepath.Base(sourcePath)
	if !IsGGUF(filename) {
		return Descriptor{}, ErrNotGGUF
	}
	return Descriptor{
		ID:              LocalIDPrefix + uuid.NewString(),
		DisplayName:     filename,
		Kind:            KindText,
		Source:          SourceCustom,
		PrimaryFilename: filename,
		SupportsOCR:     true,
		DefaultContext:  DefaultContextSize,
		Template:        TemplateChatML,
	}, nil
}

// IsGGUF reports whether a filename has the .gguf extension.
func IsGGUF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".gguf")
}

// FilenameFromURL returns the unescaped last path segment of rawURL.
func FilenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", ErrNoFilename
	}
	return name, nil
}

func checkHTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return ErrInvalidURL
	}
}
