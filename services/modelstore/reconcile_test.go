// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modelstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

func textDesc(id string) catalog.Descriptor {
	return catalog.Descriptor{
		ID:              id,
		DisplayName:     "Model " + id,
		Kind:            catalog.KindText,
		Source:          catalog.SourceCustom,
		PrimaryURL:      "https://example.com/" + id + ".gguf",
		PrimaryFilename: id + ".gguf",
		DefaultContext:  4096,
		Template:        catalog.TemplateChatML,
	}
}

func visionDesc(id string) catalog.Descriptor {
	d := textDesc(id)
	d.Kind = catalog.KindVision
	d.SupportsVision = true
	d.ProjectorURL = "https://example.com/mmproj-" + id + ".gguf"
	d.ProjectorFilename = "mmproj-" + id + ".gguf"
	return d
}

func builtInDesc(d catalog.Descriptor) catalog.Descriptor {
	d.Source = catalog.SourceBuiltIn
	return d
}

func ids(models []catalog.Descriptor) []string {
	out := make([]string, len(models))
	for i, d := range models {
		out[i] = d.ID
	}
	return out
}

func TestReconcile_DocumentedExample(t *testing.T) {
	a := builtInDesc(textDesc("A"))
	b := builtInDesc(visionDesc("B"))
	defaults := []catalog.Descriptor{a, b}

	aEdited := a
	aEdited.DisplayName = "A edited"
	c := textDesc("C")
	d := visionDesc("D")

	got := Reconcile([]catalog.Descriptor{aEdited, c, d}, defaults, nil)

	assert.Equal(t, []string{"A", "B", "C"}, ids(got))
	assert.Equal(t, "A edited", got[0].DisplayName)
	assert.Equal(t, b, got[1])
	assert.Equal(t, catalog.SourceCustom, got[2].Source)
}

func TestReconcile_BuiltInClaimingVisionFallsBackToDefault(t *testing.T) {
	a := builtInDesc(textDesc("A"))
	tampered := a
	tampered.SupportsVision = true
	tampered.DisplayName = "tampered"

	got := Reconcile([]catalog.Descriptor{tampered}, []catalog.Descriptor{a}, nil)

	assert.Equal(t, []catalog.Descriptor{a}, got)
}

func TestReconcile_TrustedCustomVisionKept(t *testing.T) {
	a := builtInDesc(textDesc("A"))
	v := visionDesc("custom-vlm")

	got := Reconcile([]catalog.Descriptor{v}, []catalog.Descriptor{a}, []string{"custom-vlm"})

	assert.Equal(t, []string{"A", "custom-vlm"}, ids(got))
}

func TestReconcile_ForcesSources(t *testing.T) {
	a := builtInDesc(textDesc("A"))
	persistedA := a
	persistedA.Source = catalog.SourceCustom
	spoofed := textDesc("X")
	spoofed.Source = catalog.SourceBuiltIn

	got := Reconcile([]catalog.Descriptor{persistedA, spoofed}, []catalog.Descriptor{a}, nil)

	assert.Equal(t, catalog.SourceBuiltIn, got[0].Source)
	assert.Equal(t, catalog.SourceCustom, got[1].Source)
}

func TestReconcile_DuplicatesKeepFirst(t *testing.T) {
	first := textDesc("C")
	first.DisplayName = "first"
	second := textDesc("C")
	second.DisplayName = "second"

	got := Reconcile([]catalog.Descriptor{first, second}, nil, nil)

	assert.Len(t, got, 1)
	assert.Equal(t, "first", got[0].DisplayName)
}

func TestReconcile_CustomOrderPreservedAndInvalidDropped(t *testing.T) {
	bad := textDesc("bad")
	bad.PrimaryFilename = ""

	got := Reconcile([]catalog.Descriptor{textDesc("z"), bad, textDesc("m"), textDesc("a")},
		[]catalog.Descriptor{builtInDesc(textDesc("A"))}, nil)

	assert.Equal(t, []string{"A", "z", "m", "a"}, ids(got))
}

func TestReconcile_EmptyPersistedYieldsDefaults(t *testing.T) {
	defaults := catalog.BuiltIns()
	assert.Equal(t, defaults, Reconcile(nil, defaults, nil))
}
