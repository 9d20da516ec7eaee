// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides a small publish/subscribe hub for ModelShelf
// state changes.
//
// The store and the download coordinator publish events; the HTTP API's
// websocket endpoint and the CLI progress renderer subscribe. Events are
// delivered synchronously on the publishing goroutine, so handlers must not
// block.
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	// TypeCatalogRefreshed fires after Store.Refresh or any catalog mutation.
	TypeCatalogRefreshed Type = "catalog.refreshed"

	// TypeModelAdded fires when a descriptor is added to the catalog.
	TypeModelAdded Type = "model.added"

	// TypeModelUpdated fires when a descriptor is replaced.
	TypeModelUpdated Type = "model.updated"

	// TypeModelRemoved fires when a descriptor is removed from the catalog.
	TypeModelRemoved Type = "model.removed"

	// TypeSelectionChanged fires when the selected model id changes.
	TypeSelectionChanged Type = "selection.changed"

	// TypeDownloadStarted fires when an attempt enters the downloading phase.
	TypeDownloadStarted Type = "download.started"

	// TypeDownloadProgress fires on each accepted progress update.
	TypeDownloadProgress Type = "download.progress"

	// TypeDownloadCompleted fires when every artifact of an attempt is placed.
	TypeDownloadCompleted Type = "download.completed"

	// TypeDownloadFailed fires when an attempt ends with an error.
	TypeDownloadFailed Type = "download.failed"

	// TypeDownloadCanceled fires when an attempt is canceled.
	TypeDownloadCanceled Type = "download.canceled"

	// TypeFilesDeleted fires after a model's local files are removed.
	TypeFilesDeleted Type = "model.files_deleted"
)

// IsDownload reports whether the type belongs to the download.* family.
func (t Type) IsDownload() bool {
	switch t {
	case TypeDownloadStarted, TypeDownloadProgress, TypeDownloadCompleted,
		TypeDownloadFailed, TypeDownloadCanceled:
		return true
	}
	return false
}

// Event is a single published state change.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// ModelID is the affected model, empty for catalog-wide events.
	ModelID string `json:"model_id,omitempty"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Data is the event payload. Publishers pass JSON-serializable values.
	Data any `json:"data,omitempty"`
}

// Publisher is the narrow interface components publish through.
type Publisher interface {
	Publish(eventType Type, modelID string, data any)
}

// Nop is a Publisher that discards everything.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Type, string, any) {}
