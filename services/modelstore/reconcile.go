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

import "github.com/AleutianAI/modelshelf/services/catalog"

// Reconcile merges persisted descriptors with the built-in defaults.
//
// # Description
//
// The output lists every default in declared order, followed by the
// persisted custom entries in their original relative order.
//
//   - A built-in id takes the persisted value when that value is valid.
//     The source is forced back to built-in.
//   - Any entry that claims vision while its id is outside the valid vision
//     set (built-in vision ids plus trustedVision) is dropped. For a
//     built-in id the default is used instead.
//   - Entries that fail Descriptor.Validate are treated the same way.
//   - Unknown ids are kept as custom entries.
//   - When an id appears more than once, the first occurrence wins.
//
// # Inputs
//
//   - persisted: Descriptors read from the catalog file.
//   - defaults: The built-in set, normally catalog.BuiltIns().
//   - trustedVision: Extra ids allowed to claim vision.
//
// # Outputs
//
//   - []Descriptor: A new slice. Inputs are not modified.
func Reconcile(persisted, defaults []catalog.Descriptor, trustedVision []string) []catalog.Descriptor {
	defaultIDs := make(map[string]struct{}, len(defaults))
	visionOK := make(map[string]struct{}, len(defaults)+len(trustedVision))
	for _, d := range defaults {
		defaultIDs[d.ID] = struct{}{}
		if d.ClaimsVision() {
			visionOK[d.ID] = struct{}{}
		}
	}
	for _, id := range trustedVision {
		visionOK[id] = struct{}{}
	}

	acceptable := func(d catalog.Descriptor) bool {
		if d.ClaimsVision() {
			if _, ok := visionOK[d.ID]; !ok {
				return false
			}
		}
		return d.Validate() == nil
	}

	seen := make(map[string]struct{}, len(persisted))
	overrides := make(map[string]catalog.Descriptor)
	var customs []catalog.Descriptor

	for _, raw := range persisted {
		d := raw.Normalize()
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}

		if _, builtIn := defaultIDs[d.ID]; builtIn {
			d.Source = catalog.SourceBuiltIn
			if acceptable(d) {
				overrides[d.ID] = d
			}
			continue
		}

		d.Source = catalog.SourceCustom
		if acceptable(d) {
			customs = append(customs, d)
		}
	}

	out := make([]catalog.Descriptor, 0, len(defaults)+len(customs))
	for _, d := range defaults {
		if o, ok := overrides[d.ID]; ok {
			out = append(out, o)
		} else {
			out = append(out, d)
		}
	}
	return append(out, customs...)
}

// visionTrusted reports whether d may claim vision under the given set.
func visionTrusted(d catalog.Descriptor, trusted map[string]struct{}) bool {
	if !d.ClaimsVision() {
		return true
	}
	_, ok := trusted[d.ID]
	return ok
}
