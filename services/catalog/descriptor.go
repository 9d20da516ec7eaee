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
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Enumerations
// =============================================================================

// Kind classifies what a model can do.
type Kind string

const (
	KindText    Kind = "text"
	KindVision  Kind = "vision"
	KindOCROnly Kind = "ocr-only"
)

// UnmarshalText accepts the canonical values plus the camelCase spelling
// written by older catalog files.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text", "":
		*k = KindText
	case "vision":
		*k = KindVision
	case "ocr-only", "ocrOnly":
		*k = KindOCROnly
	default:
		return fmt.Errorf("unknown model kind %q", string(b))
	}
	return nil
}

// Source records whether a descriptor is a built-in default or user supplied.
type Source string

const (
	SourceBuiltIn Source = "built-in"
	SourceCustom  Source = "custom"
)

// UnmarshalText accepts "built-in", "builtIn" and "custom". Unknown values
// decode as custom; reconciliation decides the real source by id.
func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "built-in", "builtIn":
		*s = SourceBuiltIn
	default:
		*s = SourceCustom
	}
	return nil
}

// =============================================================================
// Descriptor
// =============================================================================

// Descriptor describes one installable model.
//
// # Description
//
// PrimaryURL empty means the primary file was placed locally by an import
// and the descriptor is never a download target. A descriptor that claims
// vision needs a ProjectorFilename before it can report vision ready.
//
// Descriptors are values. Store methods return copies.
type Descriptor struct {
	ID                string   `json:"id" yaml:"id" validate:"required,max=128,excludesall=/\\"`
	DisplayName       string   `json:"display_name" yaml:"display_name" validate:"required,max=256"`
	Kind              Kind     `json:"kind" yaml:"kind" validate:"oneof=text vision ocr-only"`
	Source            Source   `json:"source" yaml:"source" validate:"oneof=built-in custom"`
	PrimaryURL        string   `json:"primary_url,omitempty" yaml:"primary_url,omitempty" validate:"omitempty,url"`
	PrimaryFilename   string   `json:"primary_filename" yaml:"primary_filename" validate:"required,max=255,excludesall=/\\"`
	ProjectorURL      string   `json:"projector_url,omitempty" yaml:"projector_url,omitempty" validate:"omitempty,url"`
	ProjectorFilename string   `json:"projector_filename,omitempty" yaml:"projector_filename,omitempty" validate:"omitempty,max=255,excludesall=/\\"`
	SupportsVision    bool     `json:"supports_vision" yaml:"supports_vision"`
	SupportsOCR       bool     `json:"supports_ocr" yaml:"supports_ocr"`
	DefaultContext    int      `json:"default_context" yaml:"default_context" validate:"gte=0,lte=1048576"`
	Template          Template `json:"template" yaml:"template" validate:"oneof=olmoe chatml gemma"`
	SizeHintMB        int      `json:"size_hint_mb,omitempty" yaml:"size_hint_mb,omitempty" validate:"gte=0"`
}

var descriptorValidate = validator.New()

// Validate checks field-level constraints.
//
// Path separators are rejected in the id and filenames so that the layout
// can never escape the models directory.
func (d Descriptor) Validate() error {
	if err := descriptorValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.ID, err)
	}
	if strings.Contains(d.ID, "..") || d.PrimaryFilename == ".." || d.ProjectorFilename == ".." {
		return fmt.Errorf("%w: %s: path traversal", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

// ClaimsVision reports whether the descriptor asserts vision capability.
func (d Descriptor) ClaimsVision() bool {
	return d.SupportsVision || d.Kind == KindVision
}

// IsDownloadable reports whether the descriptor has a remote primary URL.
func (d Descriptor) IsDownloadable() bool {
	return strings.TrimSpace(d.PrimaryURL) != ""
}

// HasProjector reports whether a projector artifact is fully described.
func (d Descriptor) HasProjector() bool {
	return d.SupportsVision && d.ProjectorURL != "" && d.ProjectorFilename != ""
}

// ContextSize returns DefaultContext, or fallback when it is unset.
func (d Descriptor) ContextSize(fallback int) int {
	if d.DefaultContext > 0 {
		return d.DefaultContext
	}
	return fallback
}

// Normalize fills defaults for fields older catalog files may omit.
func (d Descriptor) Normalize() Descriptor {
	if d.Kind == "" {
		d.Kind = KindText
	}
	if d.Source == "" {
		d.Source = SourceCustom
	}
	if d.Template == "" {
		d.Template = TemplateChatML
	}
	d.ID = strings.TrimSpace(d.ID)
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	return d
}
