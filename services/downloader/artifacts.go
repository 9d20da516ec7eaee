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
	"path/filepath"
	"strings"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

// ArtifactKind names the role of a downloaded file.
type ArtifactKind string

const (
	ArtifactPrimary   ArtifactKind = "primary"
	ArtifactProjector ArtifactKind = "projector"
)

// Artifact is one file to download. It is derived from a descriptor for
// each request and never persisted.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	URL         string       `json:"url"`
	Destination string       `json:"destination"`
}

// PlanArtifacts computes the artifacts for d.
//
// # Description
//
// The primary artifact is always first. The projector is added only when
// the descriptor supports vision and has both a projector URL and a
// projector filename. No I/O is performed.
//
// # Outputs
//
//   - []Artifact: Ordered artifacts, primary first.
//   - error: *Error of KindConfiguration wrapping ErrMissingURL or
//     ErrNoArtifacts.
func PlanArtifacts(layout catalog.Layout, d catalog.Descriptor) ([]Artifact, error) {
	if strings.TrimSpace(d.PrimaryURL) == "" {
		return nil, &Error{Kind: KindConfiguration, ModelID: d.ID, Artifact: ArtifactPrimary, Message: MsgMissingURL, Err: ErrMissingURL}
	}

	var artifacts []Artifact
	if name := cleanFilename(d.PrimaryFilename); name != "" {
		artifacts = append(artifacts, Artifact{
			Kind:        ArtifactPrimary,
			URL:         d.PrimaryURL,
			Destination: filepath.Join(layout.ModelDir(d.ID), name),
		})
	}
	if d.SupportsVision && strings.TrimSpace(d.ProjectorURL) != "" {
		if name := cleanFilename(d.ProjectorFilename); name != "" {
			artifacts = append(artifacts, Artifact{
				Kind:        ArtifactProjector,
				URL:         d.ProjectorURL,
				Destination: filepath.Join(layout.ModelDir(d.ID), name),
			})
		}
	}

	if len(artifacts) == 0 || artifacts[0].Kind != ArtifactPrimary {
		return nil, &Error{Kind: KindConfiguration, ModelID: d.ID, Message: MsgNoArtifacts, Err: ErrNoArtifacts}
	}
	return artifacts, nil
}

// cleanFilename rejects names that would resolve outside the model directory.
func cleanFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ""
	}
	return name
}
