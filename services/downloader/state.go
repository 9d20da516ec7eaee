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

import "time"

// Phase is the lifecycle position of a model's most recent attempt.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
	PhaseCanceled    Phase = "canceled"
)

// IsTerminal reports whether the phase ends an attempt.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCanceled
}

// State is the observable download status of one model.
//
// Progress never decreases within an attempt; a new attempt starts at 0.
type State struct {
	ModelID         string       `json:"model_id"`
	Phase           Phase        `json:"phase"`
	Progress        float64      `json:"progress"`
	IsDownloading   bool         `json:"is_downloading"`
	Error           string       `json:"error,omitempty"`
	ErrorKind       ErrorKind    `json:"error_kind,omitempty"`
	DownloadedBytes int64        `json:"downloaded_bytes"`
	TotalBytes      int64        `json:"total_bytes"`
	Artifact        ArtifactKind `json:"artifact,omitempty"`
	Attempt         uint64       `json:"attempt"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// idleState is the state reported for ids with no recorded attempt.
func idleState(id string) State {
	return State{ModelID: id, Phase: PhaseIdle}
}
